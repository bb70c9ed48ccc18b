// Package refresh serializes token refreshes and decides what a failed refresh
// means for the session.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/metrics"
)

// Target is the session a Coordinator refreshes.
type Target interface {
	// RefreshToken returns the held refresh token, or "" when there is none.
	RefreshToken() string

	// Apply installs a refreshed token set and returns the resulting user.
	Apply(ctx context.Context, tokens *authkit.TokenSet) (*authkit.User, error)

	// Clear discards the session after a definitive rejection.
	Clear(ctx context.Context)
}

// Result is the outcome of one refresh, shared by every caller that joined it.
type Result struct {
	Refreshed bool
	User      *authkit.User
	Class     Class
	Err       error
}

// Coordinator runs at most one refresh at a time. Callers arriving while a
// refresh is in flight wait for it and receive the same Result.
type Coordinator struct {
	idp     authkit.IdentityProvider
	target  Target
	logger  *slog.Logger
	metrics *metrics.Metrics

	sf singleflight.Group
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator that refreshes target through idp.
func New(idp authkit.IdentityProvider, target Target, opts ...Option) *Coordinator {
	c := &Coordinator{
		idp:    idp,
		target: target,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Refresh refreshes the target's tokens, joining a refresh already in flight.
// The shared refresh is not cancelled when ctx is; a caller whose ctx ends first
// returns early with a ClassNetwork result and leaves the refresh running.
func (c *Coordinator) Refresh(ctx context.Context) Result {
	ch := c.sf.DoChan("refresh", func() (any, error) {
		return c.run(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Result)
	case <-ctx.Done():
		return Result{Class: ClassNetwork, Err: ctx.Err()}
	}
}

func (c *Coordinator) run(ctx context.Context) Result {
	rt := c.target.RefreshToken()
	if rt == "" {
		c.target.Clear(ctx)
		c.metrics.RecordRefresh("auth_error")
		c.logger.Info("no refresh token, session cleared")
		return Result{Class: ClassAuth, Err: authkit.ErrNoRefreshToken}
	}

	tokens, err := c.idp.Refresh(ctx, rt)
	if err == nil && (tokens == nil || tokens.AccessToken == "") {
		err = authkit.ErrNoTokensReceived
	}
	var user *authkit.User
	if err == nil {
		user, err = c.target.Apply(ctx, tokens)
		if err != nil {
			err = fmt.Errorf("authkit/refresh: apply tokens: %w", err)
		}
	}
	if err != nil {
		return c.fail(ctx, err)
	}

	c.metrics.RecordRefresh("refreshed")
	c.logger.Debug("tokens refreshed")
	return Result{Refreshed: true, User: user}
}

func (c *Coordinator) fail(ctx context.Context, err error) Result {
	class := Classify(err)
	if errors.Is(err, authkit.ErrNoTokensReceived) || errors.Is(err, authkit.ErrMalformedToken) {
		class = ClassAuth
	}

	switch class {
	case ClassNetwork:
		c.metrics.RecordRefresh("network_error")
		c.logger.Warn("refresh failed transiently, keeping session", "error", err)
	default:
		class = ClassAuth
		c.target.Clear(ctx)
		c.metrics.RecordRefresh("auth_error")
		c.logger.Info("refresh rejected, session cleared", "error", err)
	}
	return Result{Class: class, Err: err}
}
