package session

import (
	"context"
	"encoding/json"
	"sync"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/refresh"
)

// Initialize restores the persisted session and returns its user, or nil when
// there is none. An unexpired session is restored without network access; an
// expired one is refreshed once. A refresh that fails for network reasons keeps
// the restored user, one rejected by the provider clears the session.
// Concurrent calls share one restore.
func (m *Manager) Initialize(ctx context.Context) *authkit.User {
	v, _, _ := m.restoring.Do("initialize", func() (any, error) {
		return m.initialize(context.WithoutCancel(ctx)), nil
	})
	user, _ := v.(*authkit.User)
	return user
}

func (m *Manager) initialize(ctx context.Context) *authkit.User {
	if sess := m.current(); sess != nil {
		return m.ensureFresh(ctx, sess)
	}

	m.setState(authkit.StateRestoring)
	loaded := m.load(ctx)

	m.mu.Lock()
	if m.sess != nil {
		// a sign-in completed while storage was being read
		loaded = m.sess
	} else if loaded != nil {
		m.sess = loaded
		m.gen++
		m.metrics.SetSignedIn(true)
	} else {
		m.state = authkit.StateSignedOut
	}
	m.mu.Unlock()

	if loaded == nil {
		m.logger.Debug("no persisted session")
		return nil
	}
	return m.ensureFresh(ctx, loaded)
}

// ensureFresh returns sess's user, refreshing first when its access token has expired.
func (m *Manager) ensureFresh(ctx context.Context, sess *authkit.Session) *authkit.User {
	if !m.expired(sess.AccessToken) {
		m.restored(ctx, sess.User)
		return sess.User
	}

	res := m.refresher.Refresh(ctx)
	switch {
	case res.Refreshed:
		return res.User
	case res.Class == refresh.ClassNetwork:
		user := m.CurrentUser()
		if user != nil {
			m.logger.Info("restored session offline, refresh deferred", "user", user.ID, "error", res.Err)
			m.restored(ctx, user)
		}
		return user
	default:
		return nil
	}
}

func (m *Manager) restored(ctx context.Context, user *authkit.User) {
	m.mu.Lock()
	wasRestoring := m.state == authkit.StateRestoring
	if m.sess != nil {
		m.state = authkit.StateSignedIn
	}
	m.mu.Unlock()

	if !wasRestoring {
		return
	}
	m.audit.Record(ctx, audit.ActionRestore, userID(user), "", nil)
	m.logger.Info("session restored", "user", userID(user))
	m.bus.Publish(user)
}

// load reads the four persisted values in parallel. It returns nil when the
// access token or user document is missing, and purges storage when the user
// document cannot be parsed.
func (m *Manager) load(ctx context.Context) *authkit.Session {
	var access, refreshTok, idTok, doc string

	var wg sync.WaitGroup
	wg.Go(func() { access = m.store.Get(ctx, authkit.KeyAccessToken) })
	wg.Go(func() { refreshTok = m.store.Get(ctx, authkit.KeyRefreshToken) })
	wg.Go(func() { idTok = m.store.Get(ctx, authkit.KeyIDToken) })
	wg.Go(func() { doc = m.store.Get(ctx, authkit.KeyUser) })
	wg.Wait()

	if access == "" || doc == "" {
		return nil
	}

	var user *authkit.User
	if err := json.Unmarshal([]byte(doc), &user); err != nil || user == nil {
		m.logger.Warn("persisted user document unreadable, purging session", "error", err)
		m.purge(ctx)
		return nil
	}

	return &authkit.Session{
		AccessToken:  access,
		RefreshToken: refreshTok,
		IDToken:      idTok,
		User:         user,
	}
}

// purge deletes every persisted session key. It waits for any session write
// in progress.
func (m *Manager) purge(ctx context.Context) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	var wg sync.WaitGroup
	for _, key := range authkit.SessionKeys {
		wg.Go(func() { m.store.Delete(ctx, key) })
	}
	wg.Wait()
}
