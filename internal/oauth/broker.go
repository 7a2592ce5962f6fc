// Package oauth obtains bearer tokens for OAuth2-authenticated
// requests through the authorization-code flow with PKCE: a local
// callback server, the system browser for consent, and a code
// exchange against the token endpoint. Obtained tokens are cached per
// client/token-endpoint pair; the interactive flow only runs when no
// valid token is held, so a collection or load run pays for consent
// at most once.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/studiowebux/postdad/internal/types"
)

const (
	// DefaultCallbackPort listens for the authorization redirect when
	// the request does not pin one.
	DefaultCallbackPort = 8085

	// CallbackTimeout bounds the wait for the user to complete consent
	// in the browser.
	CallbackTimeout = 5 * time.Minute
)

// Broker caches tokens and runs the interactive flow on demand. Its
// Token method satisfies the dispatcher's TokenProvider contract. A
// Broker is safe for concurrent use; concurrent requests for the same
// client share one flow.
type Broker struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token

	// openURL launches the consent page. Swappable in tests.
	openURL func(url string) error
}

func NewBroker() *Broker {
	return &Broker{
		tokens:  make(map[string]*oauth2.Token),
		openURL: openBrowser,
	}
}

// Token returns a cached access token for cfg, or runs the
// authorization flow to obtain one.
func (b *Broker) Token(ctx context.Context, cfg *types.OAuthConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("oauth2 config missing")
	}

	key := cfg.ClientID + "|" + cfg.TokenURL
	b.mu.Lock()
	defer b.mu.Unlock()

	if tok, ok := b.tokens[key]; ok && tok.Valid() {
		return tok.AccessToken, nil
	}

	tok, err := b.authorize(ctx, cfg)
	if err != nil {
		return "", err
	}
	b.tokens[key] = tok
	return tok.AccessToken, nil
}

// Forget drops any cached token for cfg, forcing the next request
// through the interactive flow again.
func (b *Broker) Forget(cfg *types.OAuthConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, cfg.ClientID+"|"+cfg.TokenURL)
}

type callbackResult struct {
	code  string
	state string
	err   string
}

func (b *Broker) authorize(ctx context.Context, cfg *types.OAuthConfig) (*oauth2.Token, error) {
	port := cfg.CallbackPort
	if port == 0 {
		port = DefaultCallbackPort
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer listener.Close()

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  fmt.Sprintf("http://127.0.0.1:%d/callback", port),
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	server := &http.Server{Handler: callbackHandler(results)}
	go server.Serve(listener)
	defer server.Shutdown(context.Background())

	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	slog.Info("starting oauth2 authorization", "client_id", cfg.ClientID, "port", port)
	if err := b.openURL(authURL); err != nil {
		return nil, fmt.Errorf("failed to open browser: %w\nvisit manually: %s", err, authURL)
	}

	var result callbackResult
	select {
	case result = <-results:
	case <-time.After(CallbackTimeout):
		return nil, fmt.Errorf("timed out waiting for authorization callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.err != "" {
		return nil, fmt.Errorf("authorization failed: %s", result.err)
	}
	if result.code == "" {
		return nil, fmt.Errorf("no authorization code received")
	}
	if result.state != state {
		return nil, fmt.Errorf("state mismatch in authorization callback")
	}

	tok, err := conf.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return tok, nil
}

func callbackHandler(results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		result := callbackResult{
			code:  q.Get("code"),
			state: q.Get("state"),
			err:   q.Get("error"),
		}
		if desc := q.Get("error_description"); desc != "" {
			result.err = result.err + ": " + desc
		}

		w.Header().Set("Content-Type", "text/html")
		if result.err == "" && result.code != "" {
			fmt.Fprint(w, "<html><body><h2>Authorized</h2><p>You can close this tab.</p></body></html>")
		} else {
			fmt.Fprint(w, "<html><body><h2>Authorization failed</h2><p>You can close this tab.</p></body></html>")
		}

		select {
		case results <- result:
		default:
		}
	})
}

// randomState produces the CSRF token tied to one authorization
// round trip.
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
