package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmercer/folio/internal/api"
	"github.com/dmercer/folio/internal/domain"
)

// TokenStorage is the durable slot for the access token and guest flag.
// Implemented by store.StateStore.
type TokenStorage interface {
	Token() string
	SetToken(token string) error
	ClearToken() error
	Guest() bool
	SetGuest(guest bool) error
}

// Manager owns the access token, the current user record, and the guest
// flag. All other stores consult it to decide who is acting.
//
// Login, Register, and LoadUser report success as booleans and record a
// display message instead of propagating errors; an invalid session
// (expired or undecodable token, unfetchable user) always collapses into a
// full logout.
type Manager struct {
	auth    domain.AuthRepository
	users   domain.UserRepository
	storage TokenStorage
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	token    string
	user     *domain.User
	guest    bool
	errMsg   string
	onLogout []func()
}

// NewManager creates a session manager, restoring the persisted token and
// guest flag from storage.
func NewManager(auth domain.AuthRepository, users domain.UserRepository, storage TokenStorage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		auth:    auth,
		users:   users,
		storage: storage,
		logger:  logger,
		now:     time.Now,
		token:   storage.Token(),
		guest:   storage.Guest(),
	}
}

// OnLogout registers a subscriber notified whenever the session is
// destroyed, explicitly or by expiry detection.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Login exchanges credentials for a session. On success the token is
// persisted and the full user record is fetched and stored. On any failure
// the prior session state is left untouched and false is returned.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) bool {
	m.setError("")

	resp, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.logger.Warn("login failed", "error", err)
		m.setError(messageOf(err, "Login failed"))
		return false
	}

	claims, err := DecodeClaims(resp.AccessToken)
	if err != nil {
		m.logger.Warn("login token undecodable", "error", err)
		m.setError("Login failed")
		return false
	}

	// The new token must be live for the user fetch; snapshot the prior
	// session so a failed fetch restores it.
	prevToken, prevUser, prevGuest := m.snapshot()
	m.adopt(resp.AccessToken, false)

	user, err := m.users.GetUser(ctx, claims.UserID)
	if err != nil {
		m.logger.Warn("user fetch after login failed", "error", err, "userId", claims.UserID)
		m.restore(prevToken, prevUser, prevGuest)
		m.setError(messageOf(err, "Login failed"))
		return false
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	m.logger.Info("logged in", "userId", user.ID, "role", user.Role)
	return true
}

// Register creates an account and immediately logs in with the same
// email/password. Registration success does not by itself establish a
// session; the login's result is the operation's result.
func (m *Manager) Register(ctx context.Context, data domain.RegisterData) bool {
	m.setError("")

	if _, err := m.auth.Register(ctx, data); err != nil {
		m.logger.Warn("registration failed", "error", err)
		m.setError(messageOf(err, "Registration failed"))
		return false
	}

	return m.Login(ctx, domain.Credentials{Email: data.Email, Password: data.Password})
}

// LoginAsGuest enters guest mode without acquiring a token
func (m *Manager) LoginAsGuest() {
	m.mu.Lock()
	m.guest = true
	m.mu.Unlock()
	m.storage.SetGuest(true)
	m.logger.Info("entered guest mode")
}

// Logout unconditionally clears the token, user, and guest flag. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.guest = false
	subs := m.onLogout
	m.mu.Unlock()

	m.storage.ClearToken()
	m.storage.SetGuest(false)

	for _, fn := range subs {
		fn()
	}
	m.logger.Info("logged out")
}

// LoadUser fetches the user record for the persisted token. A missing token
// is a no-op; an expired token, undecodable token, or unfetchable user all
// resolve to a full logout.
func (m *Manager) LoadUser(ctx context.Context) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return
	}

	claims, err := DecodeClaims(token)
	if err != nil {
		m.logger.Warn("stored token undecodable", "error", err)
		m.Logout()
		return
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(m.now()) {
		m.logger.Info("stored token expired", "expiresAt", claims.ExpiresAt.Time)
		m.Logout()
		return
	}

	user, err := m.users.GetUser(ctx, claims.UserID)
	if err != nil {
		// An unfetchable user is an invalid session
		m.logger.Warn("user fetch failed, destroying session", "error", err, "userId", claims.UserID)
		m.Logout()
		return
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
}

// SetUser replaces the stored user record. Used by the favorites set when a
// server mutation returns the updated user.
func (m *Manager) SetUser(user *domain.User) {
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
}

// User returns the loaded user record, or nil before LoadUser completes
func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// IsAuthenticated reports whether an access token is present. It holds even
// while the user record is still being fetched.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// IsAdmin reports whether the loaded user holds the admin role. The claims
// role is never consulted once the user record is loaded.
func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.IsAdmin()
}

// IsGuest reports whether the session is in guest mode
func (m *Manager) IsGuest() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guest
}

// Error returns the message recorded by the last failed operation
func (m *Manager) Error() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errMsg
}

// Claims decodes the current token's claims. They are recomputed from the
// raw token on every call and never stored.
func (m *Manager) Claims() (*Claims, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return nil, errors.New("no access token")
	}
	return DecodeClaims(token)
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.errMsg = msg
	m.mu.Unlock()
}

func (m *Manager) snapshot() (string, *domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.user, m.guest
}

// adopt installs a new token in memory and storage
func (m *Manager) adopt(token string, guest bool) {
	m.mu.Lock()
	m.token = token
	m.guest = guest
	m.mu.Unlock()
	m.storage.SetToken(token)
	m.storage.SetGuest(guest)
}

// restore rolls the session back to a snapshot after a failed login
func (m *Manager) restore(token string, user *domain.User, guest bool) {
	m.mu.Lock()
	m.token = token
	m.user = user
	m.guest = guest
	m.mu.Unlock()

	if token == "" {
		m.storage.ClearToken()
	} else {
		m.storage.SetToken(token)
	}
	m.storage.SetGuest(guest)
}

// messageOf prefers a server-reported message over the fallback
func messageOf(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
