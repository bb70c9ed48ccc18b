// Package kratosmw provides Kratos client middleware that attaches the session's
// access token to outgoing requests. It works with both Kratos HTTP and gRPC
// client transports.
package kratosmw

import (
	"context"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"

	authkit "github.com/chimerakang/authkit-go"
)

// AuthOption configures Client middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedOperations map[string]bool
	retry              bool
}

// WithExcludedOperations sets operations that are called without a token.
// Operations are matched by transport.Operation() (gRPC method or HTTP route pattern).
func WithExcludedOperations(ops ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, op := range ops {
			cfg.excludedOperations[op] = true
		}
	}
}

// WithRetryOnUnauthorized retries a request once with a refreshed token when the
// server answers 401. The provider must implement authkit.Refresher.
func WithRetryOnUnauthorized() AuthOption {
	return func(cfg *authConfig) { cfg.retry = true }
}

// Client returns Kratos client middleware that sets "Authorization: Bearer <token>"
// from tp. Returns kratos errors.Unauthorized when no token can be obtained.
func Client(tp authkit.TokenProvider, opts ...AuthOption) middleware.Middleware {
	cfg := &authConfig{excludedOperations: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (any, error) {
			tr, ok := transport.FromClientContext(ctx)
			if !ok || authkit.AuthSkipped(ctx) || cfg.excludedOperations[tr.Operation()] {
				return handler(ctx, req)
			}

			if err := setBearer(ctx, tr, tp); err != nil {
				return nil, err
			}
			reply, err := handler(ctx, req)
			if !cfg.retry || !errors.IsUnauthorized(err) {
				return reply, err
			}

			r, ok := tp.(authkit.Refresher)
			if !ok || !r.Refresh(ctx) {
				return reply, err
			}
			if setBearer(ctx, tr, tp) != nil {
				return reply, err
			}
			return handler(ctx, req)
		}
	}
}

// --- internal helpers ---

func setBearer(ctx context.Context, tr transport.Transporter, tp authkit.TokenProvider) error {
	token, err := tp.AccessToken(ctx)
	if err != nil {
		return errors.Unauthorized("UNAUTHORIZED", "access token unavailable").WithCause(err)
	}
	tr.RequestHeader().Set("Authorization", "Bearer "+token)
	return nil
}
