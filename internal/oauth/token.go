// Package oauth manages OAuth2 credentials for tasak applications: the
// browser consent flow, silent refresh, and persistence through the
// credential store.
package oauth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/credstore"
	"github.com/tasak/tasak/internal/logging"
)

// Default provider settings used when an app's config carries no
// meta.auth block. These are the Atlassian MCP endpoints and their public
// client ID.
const (
	defaultClientID = "5Dzgchq9CCu2EIgv"
	defaultAuthURL  = "https://mcp.atlassian.com/oauth2/authorize"
	defaultTokenURL = "https://mcp.atlassian.com/oauth2/token"
)

var defaultScopes = []string{"offline_access", "read:jira-work", "write:jira-work"}

// expiryMargin is the safety buffer against clock skew and request
// latency: a token within this margin of its expiry is treated as
// expired.
const expiryMargin = 60 * time.Second

// Manager decides whether a stored token is usable and refreshes it when
// it is not.
type Manager struct {
	store  *credstore.Store
	logger *logging.Logger
	now    func() time.Time

	// httpClient, when set, is used for all token endpoint calls.
	httpClient *http.Client

	// flowTimeout bounds the wait for the browser consent leg.
	flowTimeout time.Duration
}

// NewManager creates a token manager over the given credential store.
func NewManager(store *credstore.Store, logger *logging.Logger) *Manager {
	return &Manager{
		store:       store,
		logger:      logger,
		now:         time.Now,
		flowTimeout: 3 * time.Minute,
	}
}

// SetClock overrides the time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetHTTPClient overrides the HTTP client used for token endpoint calls.
func (m *Manager) SetHTTPClient(c *http.Client) { m.httpClient = c }

// provider resolves the effective OAuth endpoints for an app.
func provider(app *config.App) config.OAuthProvider {
	p := config.OAuthProvider{
		ClientID: defaultClientID,
		AuthURL:  defaultAuthURL,
		TokenURL: defaultTokenURL,
		Scopes:   defaultScopes,
	}
	if app.Auth == nil {
		return p
	}
	if app.Auth.ClientID != "" {
		p.ClientID = app.Auth.ClientID
	}
	if app.Auth.AuthURL != "" {
		p.AuthURL = app.Auth.AuthURL
	}
	if app.Auth.TokenURL != "" {
		p.TokenURL = app.Auth.TokenURL
	}
	if len(app.Auth.Scopes) > 0 {
		p.Scopes = app.Auth.Scopes
	}
	return p
}

func (m *Manager) oauthConfig(app *config.App) *oauth2.Config {
	p := provider(app)
	return &oauth2.Config{
		ClientID: p.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
		Scopes: p.Scopes,
	}
}

// tokenContext injects the manager's HTTP client into the context the
// oauth2 package uses for its POSTs.
func (m *Manager) tokenContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// AccessToken returns a usable bearer token for app, refreshing the
// stored credential if it is expired (or within the 60-second margin of
// expiry). The refresh is attempted at most once.
func (m *Manager) AccessToken(ctx context.Context, app *config.App) (string, error) {
	entry, ok, err := m.store.Load(app.Key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Newf(apperr.NotAuthenticated,
			"not authenticated for %q", app.Key).
			WithHint("tasak admin auth %s", app.Key)
	}

	if !entry.Expired(m.now(), expiryMargin) {
		return entry.AccessToken, nil
	}

	m.logger.Info("Access token expired. Refreshing...")
	return m.Refresh(ctx, app, entry)
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result. A refresh token omitted from the provider's
// response is carried forward: providers may issue single-use refresh
// tokens and losing the old one would strand the app's auth.
func (m *Manager) Refresh(ctx context.Context, app *config.App, entry credstore.Entry) (string, error) {
	if entry.RefreshToken == "" {
		return "", apperr.Newf(apperr.ReauthRequired,
			"stored credential for %q has no refresh token", app.Key).
			WithHint("tasak admin auth %s", app.Key)
	}

	conf := m.oauthConfig(app)
	src := conf.TokenSource(m.tokenContext(ctx), &oauth2.Token{
		RefreshToken: entry.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		return "", apperr.Wrap(apperr.ReauthRequired, err,
			"refreshing token for "+app.Key).
			WithHint("tasak admin auth %s", app.Key)
	}

	if err := m.persist(app.Key, tok, entry.RefreshToken); err != nil {
		return "", err
	}
	m.logger.Info("Token refreshed successfully.")
	return tok.AccessToken, nil
}

// persist writes a provider token back to the credential store.
func (m *Manager) persist(appKey string, tok *oauth2.Token, priorRefresh string) error {
	entry := credstore.Entry{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if entry.RefreshToken == "" {
		entry.RefreshToken = priorRefresh
	}
	if !tok.Expiry.IsZero() {
		entry.ExpiresAt = tok.Expiry.Unix()
	}
	return m.store.Save(appKey, entry)
}
