package mcpapp

import (
	"context"
	"fmt"
	"io"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/schemacache"
)

// TokenProvider resolves and establishes OAuth credentials for an app.
type TokenProvider interface {
	AccessToken(ctx context.Context, app *config.App) (string, error)
	Authorize(ctx context.Context, app *config.App) error
}

// LineSourceFunc builds the interactive input source for an app once its
// tool catalog is known.
type LineSourceFunc func(appName string, tools []schemacache.ToolDef) (LineReader, error)

// Runner drives a single `tasak <app> ...` invocation against an MCP
// application: reserved flags, discovery, surface parsing, dispatch.
type Runner struct {
	cache    *schemacache.Cache
	disc     *Discovery
	tokens   TokenProvider
	dial     DialFunc
	newLines LineSourceFunc
	logger   *logging.Logger
	out      io.Writer
	errOut   io.Writer
}

// NewRunner creates a Runner writing tool results to out and usage
// output to errOut.
func NewRunner(cache *schemacache.Cache, tokens TokenProvider, logger *logging.Logger, out, errOut io.Writer) *Runner {
	return &Runner{
		cache:    cache,
		disc:     NewDiscovery(cache, logger),
		tokens:   tokens,
		dial:     Dial,
		newLines: NewReadlineSource,
		logger:   logger,
		out:      out,
		errOut:   errOut,
	}
}

// SetDial overrides how sessions are established. Used by tests.
func (r *Runner) SetDial(dial DialFunc) { r.dial = dial }

// SetLineSource overrides where interactive input comes from. Used by
// tests and non-terminal stdin.
func (r *Runner) SetLineSource(f LineSourceFunc) { r.newLines = f }

// ProxyCommand resolves the underlying executable, arguments, and
// environment for proxy-mode apps, where argv passes through verbatim.
func ProxyCommand(app *config.App, accessToken string) (string, []string, []string, error) {
	return transportCommand(app, accessToken)
}

// Run executes one invocation of app with the raw argv that followed the
// app name on the command line.
func (r *Runner) Run(ctx context.Context, app *config.App, argv []string) error {
	rest, seen := stripReserved(argv)

	if seen["--auth"] {
		return r.tokens.Authorize(ctx, app)
	}

	if seen["--clear-cache"] {
		removed, err := r.cache.Delete(app.Key)
		if err != nil {
			return err
		}
		if removed {
			r.logger.Success("Cleared cached schema for %s", app.Key)
		} else {
			r.logger.Info("No cached schema for %s", app.Key)
		}
		if len(rest) > 0 {
			r.logger.Info("Ignoring arguments after --clear-cache: %v", rest)
		}
		return nil
	}

	// The session opens lazily: a fresh dynamic cache or a curated
	// catalog answers discovery without contacting the server at all.
	var sess Session
	openSession := func(ctx context.Context) (Session, error) {
		if sess != nil {
			return sess, nil
		}
		var token string
		if app.RequiresAuth() {
			var err error
			token, err = r.tokens.AccessToken(ctx, app)
			if err != nil {
				return nil, err
			}
		}
		s, err := r.dial(ctx, app, token, r.logger)
		if err != nil {
			return nil, err
		}
		sess = s
		return sess, nil
	}
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	fetch := func(ctx context.Context) ([]schemacache.ToolDef, error) {
		s, err := openSession(ctx)
		if err != nil {
			return nil, err
		}
		return s.ListTools(ctx)
	}

	tools, err := r.disc.ToolDefinitions(ctx, app, fetch)
	if err != nil {
		return err
	}

	if seen["--interactive"] {
		return r.runInteractive(ctx, app, tools, openSession)
	}

	inv, err := ParseInvocation(app, tools, rest, r.errOut)
	if err != nil {
		return err
	}
	if inv == nil {
		// The surface already printed usage. Explicit help succeeds; a
		// bare app name does not.
		if helpRequested(rest) {
			return nil
		}
		return apperr.Newf(apperr.ToolNotFound, "no tool specified for %q", app.Key).
			WithHint("run: tasak %s --help", app.Key)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	result, err := s.CallTool(ctx, inv.Tool, inv.Args)
	if err != nil {
		return err
	}
	if result.IsError {
		return apperr.New(apperr.ToolExecutionError, fmt.Sprintf("tool %s reported an error: %s", inv.Tool, result.Text))
	}

	fmt.Fprintln(r.out, result.Render())
	return nil
}

func helpRequested(argv []string) bool {
	for _, a := range argv {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func (r *Runner) runInteractive(ctx context.Context, app *config.App, tools []schemacache.ToolDef, open func(context.Context) (Session, error)) error {
	s, err := open(ctx)
	if err != nil {
		return err
	}
	lines, err := r.newLines(app.Key, tools)
	if err != nil {
		return err
	}
	defer lines.Close()

	loop := NewInteractiveLoop(s, tools, r.logger, r.out)
	return loop.Run(ctx, lines)
}
