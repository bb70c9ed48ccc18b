package session

import (
	"context"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
)

// SignOut ends the session. The provider is asked to revoke the tokens, but its
// failure is ignored: memory and all persisted keys are cleared regardless, the
// sign-out hooks run and listeners receive nil. Calling SignOut when signed out
// is harmless.
func (m *Manager) SignOut(ctx context.Context) {
	sess, _ := m.swap(nil)

	if sess != nil && sess.AccessToken != "" {
		if err := m.idp.GlobalSignOut(ctx, sess.AccessToken); err != nil {
			m.logger.Debug("provider sign-out failed, clearing locally", "error", err)
		}
	}

	var user *authkit.User
	if sess != nil {
		user = sess.User
	}
	m.teardown(ctx, user)
	m.audit.Record(ctx, audit.ActionSignOut, userID(user), "", nil)
	m.logger.Info("signed out", "user", userID(user))
	m.bus.Publish(nil)
}

// teardown purges storage and runs the sign-out hooks for user.
func (m *Manager) teardown(ctx context.Context, user *authkit.User) {
	m.purge(ctx)
	for _, h := range m.hooks {
		m.runHook(ctx, h, user)
	}
}

func (m *Manager) runHook(ctx context.Context, h authkit.SignOutHook, user *authkit.User) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sign-out hook panicked", "panic", r)
		}
	}()
	h(ctx, user)
}
