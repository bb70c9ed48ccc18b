package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/token"
)

// Sign-in methods, used as metric and audit labels.
const (
	MethodPassword = "password"
	MethodApple    = "apple"
	MethodGoogle   = "google"
)

var (
	errNotPersisted = errors.New("authkit/session: access token read-back mismatch")
	errSuperseded   = errors.New("authkit/session: session replaced during persistence")
)

// SignIn runs the password grant for email and establishes the session.
// Provider errors are returned unchanged.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*authkit.User, error) {
	tokens, err := m.idp.SignIn(ctx, authkit.NormalizeEmail(email), password)
	if err == nil && tokens == nil {
		err = authkit.ErrAuthenticationFailed
	}
	if err != nil {
		m.signInFailed(ctx, MethodPassword, err)
		return nil, err
	}
	return m.establish(ctx, MethodPassword, tokens)
}

// SignInWithApple exchanges an Apple credential for a session through the backend API.
func (m *Manager) SignInWithApple(ctx context.Context, cred authkit.AppleCredential) (*authkit.User, error) {
	return m.federated(ctx, MethodApple, authkit.PathAppleSignIn, cred)
}

// SignInWithGoogle exchanges a Google ID token for a session through the backend API.
func (m *Manager) SignInWithGoogle(ctx context.Context, idToken string) (*authkit.User, error) {
	return m.federated(ctx, MethodGoogle, authkit.PathGoogleSignIn, map[string]string{"idToken": idToken})
}

func (m *Manager) federated(ctx context.Context, method, path string, body any) (*authkit.User, error) {
	if m.backend == nil {
		return nil, fmt.Errorf("authkit/session: %s sign-in requires a backend: %w", method, authkit.ErrUnsupported)
	}

	res, err := m.backend.Request(ctx, path, authkit.RequestOptions{
		Method: http.MethodPost,
		Body:   body,
	})
	switch {
	case err != nil:
	case res == nil:
		err = authkit.ErrAuthenticationFailed
	case !res.Success:
		err = &authkit.APIError{Code: "unsuccessful", Message: res.Message, Err: authkit.ErrAuthenticationFailed}
	}
	if err != nil {
		m.signInFailed(ctx, method, err)
		return nil, err
	}

	return m.establish(ctx, method, &authkit.TokenSet{
		AccessToken:  res.String("accessToken"),
		IDToken:      res.String("idToken"),
		RefreshToken: res.String("refreshToken"),
	})
}

// establish validates tokens, installs the session, persists it and notifies listeners.
func (m *Manager) establish(ctx context.Context, method string, tokens *authkit.TokenSet) (*authkit.User, error) {
	if tokens.AccessToken == "" || tokens.IDToken == "" {
		m.signInFailed(ctx, method, authkit.ErrNoTokensReceived)
		return nil, authkit.ErrNoTokensReceived
	}
	user, err := token.DecodeUser(tokens.IDToken)
	if err != nil {
		m.signInFailed(ctx, method, err)
		return nil, err
	}

	sess := &authkit.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		User:         user,
	}
	gen := m.install(sess)
	m.persist(ctx, gen, sess)

	m.metrics.RecordSignIn(method, "success")
	m.audit.Record(ctx, audit.ActionSignIn, user.ID, method, nil)
	m.logger.Info("signed in", "user", user.ID, "method", method)
	m.bus.Publish(user)
	return user, nil
}

func (m *Manager) signInFailed(ctx context.Context, method string, err error) {
	m.metrics.RecordSignIn(method, "failure")
	m.audit.Record(ctx, audit.ActionSignIn, "", method, err)
	m.logger.Info("sign-in failed", "method", method, "error", err)
}

// persist writes sess to storage and verifies the access token by reading it
// back, retrying the whole write with exponential backoff. It gives up silently
// after the configured attempts or once a newer session has been installed.
// The generation check and the writes share storeMu with purge, so a purge
// that follows a sign-out always lands after any write it raced with.
func (m *Manager) persist(ctx context.Context, gen uint64, sess *authkit.Session) {
	ctx = context.WithoutCancel(ctx)

	doc, err := json.Marshal(sess.User)
	if err != nil {
		m.logger.Error("encode user document", "error", err)
		return
	}

	write := func() (struct{}, error) {
		m.storeMu.Lock()
		if m.generation() != gen {
			m.storeMu.Unlock()
			return struct{}{}, backoff.Permanent(errSuperseded)
		}
		var wg sync.WaitGroup
		wg.Go(func() { m.store.Set(ctx, authkit.KeyAccessToken, sess.AccessToken) })
		wg.Go(func() { m.store.Set(ctx, authkit.KeyIDToken, sess.IDToken) })
		wg.Go(func() { m.store.Set(ctx, authkit.KeyUser, string(doc)) })
		wg.Go(func() {
			if sess.RefreshToken == "" {
				m.store.Delete(ctx, authkit.KeyRefreshToken)
			} else {
				m.store.Set(ctx, authkit.KeyRefreshToken, sess.RefreshToken)
			}
		})
		wg.Wait()
		m.storeMu.Unlock()

		if m.store.Get(ctx, authkit.KeyAccessToken) != sess.AccessToken {
			return struct{}{}, errNotPersisted
		}
		return struct{}{}, nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     m.cfg.PersistBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         m.cfg.PersistBackoff << m.cfg.PersistAttempts,
	}
	_, err = backoff.Retry(ctx, write,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(m.cfg.PersistAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.metrics.RecordPersistRetry()
			m.logger.Debug("session write not visible, retrying", "in", next)
		}),
	)
	switch {
	case err == nil:
	case errors.Is(err, errSuperseded):
		m.logger.Debug("session persistence superseded")
	default:
		m.logger.Warn("session not persisted, continuing in memory", "attempts", m.cfg.PersistAttempts, "error", err)
	}
}
