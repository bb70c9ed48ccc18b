// Package session provides the session manager: the single owner of the signed-in
// user's tokens. It restores sessions from secure storage, refreshes expired tokens
// through a single-flight coordinator, persists new sessions with a verified write
// and notifies listeners of every state change.
package session

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/events"
	"github.com/chimerakang/authkit-go/metrics"
	"github.com/chimerakang/authkit-go/refresh"
	"github.com/chimerakang/authkit-go/token"
)

// Manager owns the current session. All session mutation goes through its methods.
type Manager struct {
	idp     authkit.IdentityProvider
	store   authkit.SecureTokenStore
	backend authkit.BackendAPI
	cfg     authkit.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger
	hooks   []authkit.SignOutHook
	now     func() time.Time

	bus       *events.Bus
	refresher *refresh.Coordinator
	restoring singleflight.Group

	// storeMu serializes session writes with purges.
	storeMu sync.Mutex

	mu    sync.RWMutex
	sess  *authkit.Session
	state authkit.State
	// gen changes whenever sess is replaced; refreshGen is the generation a
	// refresh started from, so a stale refresh cannot overwrite a newer session.
	gen        uint64
	refreshGen uint64
}

// compile-time check
var _ authkit.TokenProvider = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithBackend enables federated sign-in through the backend API.
func WithBackend(b authkit.BackendAPI) Option {
	return func(m *Manager) { m.backend = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records sign-ins, refresh outcomes and persistence retries.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAudit records lifecycle decisions.
func WithAudit(a *audit.Logger) Option {
	return func(m *Manager) { m.audit = a }
}

// WithSignOutHook registers h to run whenever a session ends.
func WithSignOutHook(h authkit.SignOutHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

// WithConfig sets expiry and persistence tuning. Zero fields keep their defaults.
func WithConfig(cfg authkit.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithClock sets the time source used for local expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a signed-out manager. Call Initialize to restore a persisted session.
func New(idp authkit.IdentityProvider, st authkit.SecureTokenStore, opts ...Option) *Manager {
	m := &Manager{
		idp:    idp,
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		state:  authkit.StateSignedOut,
	}
	for _, o := range opts {
		o(m)
	}
	m.cfg = m.cfg.WithDefaults()
	if err := m.cfg.Validate(); err != nil {
		m.logger.Warn("invalid session config, using defaults", "error", err)
		m.cfg = authkit.Config{}.WithDefaults()
	}

	m.bus = events.New(events.WithLogger(m.logger), events.WithMetrics(m.metrics))
	m.refresher = refresh.New(idp, target{m},
		refresh.WithLogger(m.logger),
		refresh.WithMetrics(m.metrics),
	)
	return m
}

// Subscribe registers l for state changes. It receives the user after sign-in,
// restore and refresh, and nil after the session ends.
func (m *Manager) Subscribe(l events.Listener) (unsubscribe func()) {
	return m.bus.Subscribe(l)
}

// IsAuthenticated reports whether an access token is held in memory.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess != nil && m.sess.AccessToken != ""
}

// CurrentUser returns the signed-in user, or nil.
func (m *Manager) CurrentUser() *authkit.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil
	}
	return m.sess.User
}

// State returns the externally visible lifecycle state.
func (m *Manager) State() authkit.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) current() *authkit.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

func (m *Manager) setState(s authkit.State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// install replaces the session and returns the new generation.
func (m *Manager) install(sess *authkit.Session) uint64 {
	_, gen := m.swap(sess)
	return gen
}

// swap replaces the session, returning the previous one and the new generation.
func (m *Manager) swap(sess *authkit.Session) (*authkit.Session, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapLocked(sess)
}

func (m *Manager) swapLocked(sess *authkit.Session) (*authkit.Session, uint64) {
	prev := m.sess
	m.sess = sess
	m.gen++
	if sess != nil {
		m.state = authkit.StateSignedIn
	} else {
		m.state = authkit.StateSignedOut
	}
	m.metrics.SetSignedIn(sess != nil)
	return prev, m.gen
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

func (m *Manager) expired(tok string) bool {
	return token.IsExpiredAt(tok, m.cfg.ExpiryBuffer, m.now())
}

func userID(u *authkit.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
