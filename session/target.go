package session

import (
	"context"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/refresh"
	"github.com/chimerakang/authkit-go/token"
)

// target exposes the manager's session to the refresh coordinator.
type target struct{ m *Manager }

var _ refresh.Target = target{}

func (t target) RefreshToken() string {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshGen = m.gen
	if m.sess == nil {
		return ""
	}
	return m.sess.RefreshToken
}

// Apply installs a refreshed token set. A missing refresh token keeps the held
// one and a missing ID token keeps the held ID token and user. When the session
// was replaced or ended while the refresh ran, the tokens are discarded.
func (t target) Apply(ctx context.Context, tokens *authkit.TokenSet) (*authkit.User, error) {
	m := t.m

	var user *authkit.User
	if tokens.IDToken != "" {
		u, err := token.DecodeUser(tokens.IDToken)
		if err != nil {
			return nil, err
		}
		user = u
	}

	m.mu.Lock()
	old := m.sess
	if old == nil || m.gen != m.refreshGen {
		m.mu.Unlock()
		m.logger.Debug("discarding refresh for a replaced session")
		if old == nil {
			return nil, nil
		}
		return old.User, nil
	}
	next := &authkit.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: old.RefreshToken,
		IDToken:      old.IDToken,
		User:         old.User,
	}
	if tokens.RefreshToken != "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if user != nil {
		next.IDToken = tokens.IDToken
		next.User = user
	}
	_, gen := m.swapLocked(next)
	m.mu.Unlock()

	m.persist(ctx, gen, next)

	m.audit.Record(ctx, audit.ActionRefresh, next.User.ID, "", nil)
	m.bus.Publish(next.User)
	return next.User, nil
}

// Clear ends a session whose refresh was rejected.
func (t target) Clear(ctx context.Context) {
	m := t.m

	m.mu.Lock()
	if m.gen != m.refreshGen {
		m.mu.Unlock()
		return
	}
	prev, _ := m.swapLocked(nil)
	m.mu.Unlock()

	var user *authkit.User
	if prev != nil {
		user = prev.User
	}
	m.teardown(ctx, user)
	m.audit.Record(ctx, audit.ActionRefresh, userID(user), "", authkit.ErrNoAuthenticatedUser)
	m.logger.Info("session cleared after rejected refresh", "user", userID(user))
	m.bus.Publish(nil)
}
