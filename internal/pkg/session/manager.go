package session

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Manager owns the token pair for one configured contract.  Login is lazy:
// the first caller that needs a token pays for it.  Expiry is only detected
// reactively, when a caller reports the token was rejected via Invalidate;
// the refresh token is kept but never exchanged.
type Manager struct {
	api   ufanetapi.Authenticator
	creds ufanetapi.Credentials

	mu       sync.Mutex
	token    *oauth2.Token
	fileName string
	onLogin  func()
}

func NewManager(api ufanetapi.Authenticator, creds ufanetapi.Credentials) *Manager {
	return &Manager{
		api:   api,
		creds: creds,
	}
}

// WithTokenFile makes the manager persist tokens to fileName, and picks up
// a token already stored there.  A missing or unreadable file is not fatal.
func (m *Manager) WithTokenFile(fileName string) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileName = fileName
	if fileName == "" {
		return m
	}

	tok, err := load(fileName)
	if err != nil {
		logging.Logger(nil).WithError(err).Debug("no usable cached token, will log in on first use")
		return m
	}

	m.token = tok
	return m
}

// OnLogin registers a hook called after every successful login
func (m *Manager) OnLogin(f func()) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogin = f
	return m
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate tokens when stringified
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, refresh := "", ""
	if m.token != nil {
		access, refresh = m.token.AccessToken, m.token.RefreshToken
	}

	return fmt.Sprintf("%s, accessToken [%s], refreshToken [%s], tokenFile [%s]",
		m.creds, hashOf(access), hashOf(refresh), m.fileName)
}

// Token returns the cached token pair, logging in first if there is none
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && m.token.AccessToken != "" {
		return m.token, nil
	}

	return m.login(ctx)
}

// Login discards any cached token and authenticates again
func (m *Manager) Login(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.login(ctx)
}

// must be called with mu held
func (m *Manager) login(ctx context.Context) (*oauth2.Token, error) {
	m.token = nil

	if err := m.creds.Validate(); err != nil {
		return nil, err
	}

	tok, err := m.api.Login(ctx, m.creds)
	if err != nil {
		return nil, err
	}

	if tok == nil || tok.AccessToken == "" {
		return nil, &ufanetapi.AuthenticationError{Reason: "access token not received"}
	}

	// replaced wholesale, never patched
	m.token = tok
	logging.Logger(ctx).Debugf("authenticated contract %s", m.creds.Contract)

	if m.onLogin != nil {
		m.onLogin()
	}

	m.save(ctx)
	return m.token, nil
}

// Headers returns the header set for an authenticated vendor call
func (m *Manager) Headers(ctx context.Context) (http.Header, error) {
	tok, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}

	return headersFor(tok), nil
}

func headersFor(tok *oauth2.Token) http.Header {
	req := &http.Request{Header: make(http.Header)}
	tok.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")
	return req.Header
}

// Invalidate forgets the token that rejected was built from, so the next
// caller logs in again.  A token that already replaced it is kept.
func (m *Manager) Invalidate(rejected http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return
	}

	if rejected.Get("Authorization") != headersFor(m.token).Get("Authorization") {
		logging.Logger(nil).Debug("rejected token already replaced, keeping the current one")
		return
	}

	m.token = nil
	if m.fileName != "" {
		if err := remove(m.fileName); err != nil {
			logging.Logger(nil).WithError(err).Warn("removing cached token")
		}
	}
}

// HasToken reports whether a token is cached
func (m *Manager) HasToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil
}

// must be called with mu held
func (m *Manager) save(ctx context.Context) {
	if m.fileName == "" {
		return
	}

	if err := store(m.fileName, m.token); err != nil {
		logging.Logger(ctx).WithError(err).Warn("cannot cache token")
	}
}
