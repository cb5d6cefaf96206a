package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// authTimeout is the timeout for auth API calls.
	authTimeout = 10 * time.Second

	// oauthCallbackTimeout bounds the wait for the browser redirect.
	oauthCallbackTimeout = 5 * time.Minute

	// oauthStartPort is the first port tried for the OAuth callback server.
	oauthStartPort = 8085

	// oauthMaxPortAttempts limits the port scan.
	oauthMaxPortAttempts = 5
)

// Session is a persisted auth session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Client authenticates against the hosted auth API and implements Provider.
// Sessions persist across runs in a file under the config directory.
type Client struct {
	baseURL     string
	anonKey     string
	sessionPath string
	httpClient  *http.Client

	mu             sync.Mutex
	session        *Session
	listeners      map[int]func(Identity, bool)
	nextListenerID int
}

// NewClient creates an auth client. A previously saved session is restored
// if sessionPath holds one; a corrupt or missing file means signed out.
func NewClient(baseURL, anonKey, sessionPath string) *Client {
	c := &Client{
		baseURL:     baseURL,
		anonKey:     anonKey,
		sessionPath: sessionPath,
		httpClient:  &http.Client{Timeout: authTimeout},
		listeners:   make(map[int]func(Identity, bool)),
	}
	if data, err := os.ReadFile(sessionPath); err == nil {
		var s Session
		if err := json.Unmarshal(data, &s); err == nil && s.AccessToken != "" {
			c.session = &s
		}
	}
	return c
}

// CurrentIdentity implements Provider.
func (c *Client) CurrentIdentity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Identity{}, false
	}
	return c.session.User, true
}

// AccessToken returns the current bearer token, or empty when signed out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// OnSessionChange implements Provider.
func (c *Client) OnSessionChange(fn func(Identity, bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// authResponse is the token payload returned by signup and sign-in.
type authResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	User         Identity `json:"user"`
}

// authError is the error body returned by the auth API.
type authError struct {
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

// SignUp registers a new account. The display name travels as user metadata
// so the backend can create the matching person row.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (Identity, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]any{"name": name},
	}
	resp, err := c.post(ctx, "/auth/v1/signup", body, false)
	if err != nil {
		return Identity{}, fmt.Errorf("sign up: %w", err)
	}
	// Signup does not start a session until the address is confirmed.
	return resp.User, nil
}

// SignIn exchanges credentials for a session and notifies listeners.
func (c *Client) SignIn(ctx context.Context, email, password string) (Identity, error) {
	body := map[string]any{"email": email, "password": password}
	resp, err := c.post(ctx, "/auth/v1/token?grant_type=password", body, false)
	if err != nil {
		return Identity{}, fmt.Errorf("sign in: %w", err)
	}
	if err := c.storeSession(resp); err != nil {
		return Identity{}, err
	}
	return resp.User, nil
}

// SignOut revokes the session remotely, removes the saved session, and
// notifies listeners. The local session is kept when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	if _, err := c.post(ctx, "/auth/v1/logout", nil, true); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	c.clearSession()
	return nil
}

// SignInWithOAuth runs the browser-redirect flow for an external provider
// (e.g. "google"). The authorization URL is written to out; a local HTTP
// server catches the callback and the code is exchanged with PKCE.
func (c *Client) SignInWithOAuth(ctx context.Context, provider string, out io.Writer) (Identity, error) {
	port, listener, err := findAvailablePort()
	if err != nil {
		return Identity{}, fmt.Errorf("oauth: no local port for callback: %w", err)
	}
	defer listener.Close()

	conf := &oauth2.Config{
		ClientID:    c.anonKey,
		RedirectURL: fmt.Sprintf("http://localhost:%d/callback", port),
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.baseURL + "/auth/v1/authorize?provider=" + provider,
			TokenURL: c.baseURL + "/auth/v1/token?grant_type=pkce",
		},
	}

	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL("state", oauth2.S256ChallengeOption(verifier))

	fmt.Fprintln(out, "Open this URL in your browser:")
	fmt.Fprintln(out, authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			errCh <- fmt.Errorf("no code in callback")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Sign-in successful</h1><p>You may close this window.</p></body></html>")
		codeCh <- code
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return Identity{}, fmt.Errorf("oauth: %w", err)
	case <-time.After(oauthCallbackTimeout):
		return Identity{}, fmt.Errorf("oauth: callback timed out")
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Identity{}, fmt.Errorf("oauth: exchange code: %w", err)
	}

	resp := &authResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		resp.ExpiresIn = int(time.Until(token.Expiry).Seconds())
	}

	user, err := c.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return Identity{}, err
	}
	resp.User = user

	if err := c.storeSession(resp); err != nil {
		return Identity{}, err
	}
	return user, nil
}

// fetchUser resolves the identity behind an access token.
func (c *Client) fetchUser(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch user: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("fetch user: status %d", httpResp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(httpResp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("fetch user: %w", err)
	}
	return id, nil
}

func (c *Client) post(ctx context.Context, path string, body any, bearer bool) (*authResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken())
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		var ae authError
		if err := json.Unmarshal(respBody, &ae); err == nil {
			if ae.Message != "" {
				return nil, fmt.Errorf("auth error: %s", ae.Message)
			}
			if ae.ErrorDescription != "" {
				return nil, fmt.Errorf("auth error: %s", ae.ErrorDescription)
			}
		}
		return nil, fmt.Errorf("auth error: status %d", httpResp.StatusCode)
	}

	var resp authResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}
	return &resp, nil
}

// storeSession persists the session with mode 0600 and notifies listeners.
func (c *Client) storeSession(resp *authResponse) error {
	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}
	if resp.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.sessionPath, data, 0600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	c.mu.Lock()
	c.session = s
	fns := listenerSnapshot(c.listeners)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s.User, true)
	}
	return nil
}

func (c *Client) clearSession() {
	os.Remove(c.sessionPath)

	c.mu.Lock()
	c.session = nil
	fns := listenerSnapshot(c.listeners)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(Identity{}, false)
	}
}

func listenerSnapshot(m map[int]func(Identity, bool)) []func(Identity, bool) {
	fns := make([]func(Identity, bool), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

// findAvailablePort tries ports starting from oauthStartPort.
func findAvailablePort() (int, net.Listener, error) {
	for i := 0; i < oauthMaxPortAttempts; i++ {
		port := oauthStartPort + i
		addr := fmt.Sprintf("localhost:%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			return port, listener, nil
		}
	}
	return 0, nil, fmt.Errorf("no available port found")
}
