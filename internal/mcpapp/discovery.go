package mcpapp

import (
	"context"
	"time"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/schemacache"
)

const (
	// dynamicTTL is the transport-avoidance window for dynamic mode: a
	// fetch within this window is reused without contacting the server.
	dynamicTTL = 15 * time.Minute

	// curatedWarnDays is the advisory staleness threshold for curated
	// schemas.
	curatedWarnDays = 7
)

// FetchFunc obtains the live tool catalog. Discovery calls it at most
// once per invocation.
type FetchFunc func(ctx context.Context) ([]schemacache.ToolDef, error)

// Discovery resolves an application's tool catalog according to its
// mode's cache policy.
type Discovery struct {
	cache  *schemacache.Cache
	logger *logging.Logger
}

// NewDiscovery creates a Discovery over the given schema cache.
func NewDiscovery(cache *schemacache.Cache, logger *logging.Logger) *Discovery {
	return &Discovery{cache: cache, logger: logger}
}

// ToolDefinitions returns the catalog for app. Curated mode prefers the
// cache regardless of age; dynamic mode fetches live unless the last
// fetch is within the TTL. Proxy mode never reaches discovery.
func (d *Discovery) ToolDefinitions(ctx context.Context, app *config.App, fetch FetchFunc) ([]schemacache.ToolDef, error) {
	switch app.Mode {
	case config.ModeCurated:
		return d.curated(ctx, app, fetch)
	case config.ModeDynamic:
		return d.dynamic(ctx, app, fetch)
	default:
		return nil, apperr.Newf(apperr.ConfigMissing,
			"application %q: mode %s has no tool discovery", app.Key, app.Mode)
	}
}

func (d *Discovery) curated(ctx context.Context, app *config.App, fetch FetchFunc) ([]schemacache.ToolDef, error) {
	entry, ok, err := d.cache.Load(app.Key)
	if err != nil {
		return nil, err
	}
	if ok {
		if days, known, _ := d.cache.AgeDays(app.Key); known && days > curatedWarnDays {
			d.logger.Warning("schema for %q is %d days old. Consider 'tasak admin refresh %s'.",
				app.Key, days, app.Key)
		}
		return entry.Tools, nil
	}

	d.logger.Info("No cached schema for %q, fetching from server...", app.Key)
	return d.fetchAndPersist(ctx, app, fetch)
}

func (d *Discovery) dynamic(ctx context.Context, app *config.App, fetch FetchFunc) ([]schemacache.ToolDef, error) {
	entry, fresh, err := d.cache.FreshWithin(app.Key, dynamicTTL)
	if err != nil {
		return nil, err
	}
	if fresh {
		d.logger.InfoVerbose("Using tool definitions cached within the last %s.", dynamicTTL)
		return entry.Tools, nil
	}

	d.logger.Info("Fetching tool definitions for %q from server...", app.Key)
	return d.fetchAndPersist(ctx, app, fetch)
}

func (d *Discovery) fetchAndPersist(ctx context.Context, app *config.App, fetch FetchFunc) ([]schemacache.ToolDef, error) {
	tools, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(tools) == 0 {
		return nil, emptyCatalog(app)
	}

	if path, err := d.cache.Save(app.Key, tools); err != nil {
		d.logger.Warning("could not persist schema cache: %v", err)
	} else {
		d.logger.InfoVerbose("Cached tool definitions to %s", path)
	}
	return tools, nil
}

// emptyCatalog builds the diagnostic for a live fetch that returned zero
// tools, enumerating the likely causes.
func emptyCatalog(app *config.App) error {
	e := apperr.Newf(apperr.EmptyCatalog,
		"no tools discovered for %q; likely causes: the tool server is not running, the server exposes no tools, or the application is misconfigured", app.Key)
	if app.Type == config.TypeMCPRemote {
		return e.WithHint("check meta.server_url, and run: tasak admin auth %s", app.Key)
	}
	return e.WithHint("check meta.command, and run: tasak admin info %s", app.Key)
}
