package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"mixtape/internal/shared"
)

const (
	// AuthURL is the Spotify OAuth2 authorization endpoint.
	AuthURL = "https://accounts.spotify.com/authorize"
	// TokenURL is the Spotify OAuth2 token endpoint.
	TokenURL = "https://accounts.spotify.com/api/token"

	// TokenMargin is subtracted from the recorded expiry so a token is
	// never handed out moments before the provider rejects it.
	TokenMargin = 5 * time.Second

	defaultExpiresIn = 3600
)

// Credential is an access token with its absolute expiry.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the credential is usable at time now, leaving
// TokenMargin of headroom before the real expiry.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-TokenMargin))
}

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Manager owns the token lifecycle: it mints authorization URLs, records
// callback results, and resolves a usable access token from whichever
// source currently has one.
type Manager struct {
	clientID    string
	redirectURI string
	scopes      []string

	store  Store
	client *http.Client
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	cached Credential
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the HTTP client used for token endpoint requests.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) { m.client = client }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager for the given application credentials
// backed by store.
func NewManager(cfg *shared.Config, store Store, logger *log.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		clientID:    cfg.Spotify.ClientID,
		redirectURI: cfg.RedirectURI(),
		scopes:      cfg.Spotify.Scopes,
		store:       store,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    m.clientID,
		RedirectURL: m.redirectURI,
		Scopes:      m.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: TokenURL,
		},
	}
}

// AuthorizeURL generates a fresh verifier and state, persists both, and
// returns the provider authorization URL the user must visit.
func (m *Manager) AuthorizeURL() (string, error) {
	if m.clientID == "" {
		return "", fmt.Errorf("%w: no client id configured", shared.ErrMissingCredentials)
	}

	verifier, err := GenerateVerifier()
	if err != nil {
		return "", err
	}
	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	if err := m.store.Set(KeyVerifier, verifier); err != nil {
		return "", fmt.Errorf("storing verifier: %w", err)
	}
	if err := m.store.Set(KeyState, state); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}

	u := m.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", DeriveChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return u, nil
}

// RecordAuthorizationCode validates the callback state and stages the
// authorization code for exchange on the next AccessToken call.
func (m *Manager) RecordAuthorizationCode(code, state string) error {
	expected, ok := m.store.Get(KeyState)
	if !ok || expected != state {
		return shared.ErrStateMismatch
	}
	_ = m.store.Delete(KeyState)
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", shared.ErrAuthFailed)
	}
	if err := m.store.Set(KeyPendingCode, code); err != nil {
		return fmt.Errorf("storing authorization code: %w", err)
	}
	return nil
}

// AccessToken resolves a usable access token, trying sources in order:
// the in-memory credential, the persistent store, a refresh token, and
// finally a staged authorization code. When every source is exhausted it
// returns shared.ErrNotAuthenticated.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.cached.Valid(now) {
		return m.cached.AccessToken, nil
	}

	if cred, ok := m.storedCredential(); ok && cred.Valid(now) {
		m.cached = cred
		return cred.AccessToken, nil
	}

	if refresh, ok := m.store.Get(KeyRefreshToken); ok && refresh != "" {
		cred, err := m.refreshAccessToken(ctx, refresh)
		if err == nil {
			m.cached = cred
			return cred.AccessToken, nil
		}
		// A dead refresh token is not fatal; fall through to the
		// remaining sources.
		m.logger.Debugf("token refresh failed: %v", err)
	}

	if code, ok := m.store.Get(KeyPendingCode); ok && code != "" {
		cred, err := m.exchangeCode(ctx, code)
		if err != nil {
			return "", err
		}
		m.cached = cred
		return cred.AccessToken, nil
	}

	return "", shared.ErrNotAuthenticated
}

// Authenticated reports whether AccessToken would currently succeed
// without user interaction.
func (m *Manager) Authenticated(ctx context.Context) bool {
	_, err := m.AccessToken(ctx)
	return err == nil
}

// Logout discards every stored credential and the in-memory cache.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt, KeyVerifier, KeyPendingCode, KeyState} {
		_ = m.store.Delete(key)
	}
	m.cached = Credential{}
}

func (m *Manager) storedCredential() (Credential, bool) {
	token, ok := m.store.Get(KeyAccessToken)
	if !ok || token == "" {
		return Credential{}, false
	}
	raw, ok := m.store.Get(KeyExpiresAt)
	if !ok {
		return Credential{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Credential{}, false
	}
	return Credential{AccessToken: token, ExpiresAt: time.UnixMilli(millis)}, true
}

func (m *Manager) persist(tok tokenResponse) Credential {
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = defaultExpiresIn
	}
	expiresAt := m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	_ = m.store.Set(KeyAccessToken, tok.AccessToken)
	_ = m.store.Set(KeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10))
	if tok.RefreshToken != "" {
		_ = m.store.Set(KeyRefreshToken, tok.RefreshToken)
	}
	return Credential{AccessToken: tok.AccessToken, ExpiresAt: expiresAt}
}

// exchangeCode trades a staged authorization code for tokens. The code
// and verifier are consumed whether or not the exchange succeeds.
func (m *Manager) exchangeCode(ctx context.Context, code string) (Credential, error) {
	verifier, _ := m.store.Get(KeyVerifier)
	_ = m.store.Delete(KeyPendingCode)
	_ = m.store.Delete(KeyVerifier)

	if verifier == "" {
		return Credential{}, fmt.Errorf("%w: no code verifier on record", shared.ErrAuthFailed)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {m.redirectURI},
		"client_id":     {m.clientID},
		"code_verifier": {verifier},
	}
	tok, err := m.postToken(ctx, form)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return m.persist(tok), nil
}

func (m *Manager) refreshAccessToken(ctx context.Context, refreshToken string) (Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {m.clientID},
	}
	tok, err := m.postToken(ctx, form)
	if err != nil {
		return Credential{}, err
	}
	return m.persist(tok), nil
}

func (m *Manager) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, shared.NewStatusError(resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return tokenResponse{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token response missing access_token")
	}
	return tok, nil
}
