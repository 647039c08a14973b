package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tasak/tasak/internal/config"
)

// callbackResult is the outcome of one authorization redirect.
type callbackResult struct {
	code string
	err  error
}

// Authorize runs the interactive consent flow for app: it opens the
// provider's authorization URL in a browser, waits for the redirect to a
// loopback callback server, exchanges the authorization code, and
// persists the resulting credential.
//
// The callback handler and the waiting flow communicate over a single-use
// buffered channel; there is no shared capture variable.
func (m *Manager) Authorize(ctx context.Context, app *config.App) error {
	conf := m.oauthConfig(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("starting callback listener: %w", err)
	}
	defer ln.Close()
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	srv := &http.Server{Handler: callbackHandler(state, results)}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case results <- callbackResult{err: err}:
			default:
			}
		}
	}()
	defer srv.Shutdown(context.Background())

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	m.logger.Info("Your browser should open for authentication.")
	m.logger.Info("If it doesn't, open this URL manually:\n%s", authURL)
	openBrowser(authURL)

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return fmt.Errorf("authorization failed: %w", res.err)
		}
		code = res.code
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.flowTimeout):
		return fmt.Errorf("authentication timed out after %s waiting for the browser callback", m.flowTimeout)
	}

	m.logger.Info("Authorization code received. Exchanging for access token...")
	tok, err := conf.Exchange(m.tokenContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	if err := m.persist(app.Key, tok, ""); err != nil {
		return err
	}
	m.logger.Success("Successfully authenticated and saved tokens for %q.", app.Key)
	return nil
}

// callbackHandler captures the authorization code from the provider's
// redirect and hands it to the waiting flow.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "<h1>Authentication failed.</h1><p>No authorization code found.</p>")
			select {
			case results <- callbackResult{err: fmt.Errorf("redirect carried no authorization code")}:
			default:
			}
			return
		}
		fmt.Fprint(w, "<h1>Authentication successful!</h1><p>You can close this window.</p>")
		select {
		case results <- callbackResult{code: code}:
		default:
		}
	})
}

// openBrowser makes a best-effort attempt to open url in the user's
// browser. Failure is not an error; the URL was already printed.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
