package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/refresh"
	"github.com/chimerakang/authkit-go/token"
)

// AccessToken returns a usable access token, restoring the persisted session when
// none is held and refreshing when the held token has expired. It returns
// authkit.ErrNoAuthenticatedUser when no session can be established. After a
// refresh that failed for network reasons the held token is returned as is.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.token(ctx, func(s *authkit.Session) string { return s.AccessToken })
}

// IDToken is AccessToken for the ID token.
func (m *Manager) IDToken(ctx context.Context) (string, error) {
	return m.token(ctx, func(s *authkit.Session) string { return s.IDToken })
}

func (m *Manager) token(ctx context.Context, pick func(*authkit.Session) string) (string, error) {
	sess := m.current()
	restored := false
	if sess == nil {
		if m.Initialize(ctx) == nil {
			return "", authkit.ErrNoAuthenticatedUser
		}
		if sess = m.current(); sess == nil {
			return "", authkit.ErrNoAuthenticatedUser
		}
		restored = true
	}

	// Initialize refreshes an expired access token once. Still expired after it
	// means the refresh failed offline, so no second attempt is made.
	retried := restored && m.expired(sess.AccessToken)
	if m.expired(pick(sess)) && !retried {
		res := m.refresher.Refresh(ctx)
		if res.Class == refresh.ClassAuth {
			return "", fmt.Errorf("%w: %w", authkit.ErrNoAuthenticatedUser, res.Err)
		}
		if sess = m.current(); sess == nil {
			return "", authkit.ErrNoAuthenticatedUser
		}
	}
	return pick(sess), nil
}

// Refresh refreshes the session's tokens and reports whether it succeeded.
func (m *Manager) Refresh(ctx context.Context) bool {
	if m.current() == nil && m.Initialize(ctx) == nil {
		return false
	}
	return m.refresher.Refresh(ctx).Refreshed
}

// ChangePassword changes the signed-in user's password. Provider errors, such as
// password policy violations, are returned unchanged.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	at, err := m.AccessToken(ctx)
	if err != nil {
		return err
	}
	err = m.idp.ChangePassword(ctx, at, oldPassword, newPassword)
	m.audit.Record(ctx, audit.ActionPasswordChange, userID(m.CurrentUser()), "", err)
	return err
}

// VerifyPassword reports whether candidate is the signed-in user's password.
// It performs a real password sign-in; the tokens it yields are discarded and
// the held session is left as is.
func (m *Manager) VerifyPassword(ctx context.Context, candidate string) bool {
	user := m.CurrentUser()
	if user == nil || user.Email == "" {
		return false
	}
	tokens, err := m.idp.SignIn(ctx, authkit.NormalizeEmail(user.Email), candidate)
	if err != nil {
		m.logger.Debug("password verification failed", "user", user.ID, "error", err)
		return false
	}
	return tokens != nil && tokens.AccessToken != ""
}

// TokenSource returns an oauth2.TokenSource backed by the session, for use with
// oauth2.NewClient and oauth2.Transport.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	at, err := ts.m.AccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: at, TokenType: "Bearer"}
	if exp, ok := token.ExpiresAt(at); ok {
		tok.Expiry = exp.Add(-ts.m.cfg.ExpiryBuffer)
	}
	return tok, nil
}
