// Package grpcmw provides gRPC client interceptors that attach the session's
// access token to outgoing calls.
//
// For Kratos clients use kratosmw instead; Kratos middleware covers both its
// HTTP and gRPC transports.
package grpcmw

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authkit "github.com/chimerakang/authkit-go"
)

// AuthOption configures auth interceptor behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedMethods map[string]bool
	retry           bool
}

// WithExcludedMethods sets gRPC methods that are called without a token.
// Methods should be fully qualified (e.g. "/package.Service/Method").
func WithExcludedMethods(methods ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, m := range methods {
			cfg.excludedMethods[m] = true
		}
	}
}

// WithRetryOnUnauthenticated retries a unary call once with a refreshed token when
// the server answers codes.Unauthenticated. The provider must implement
// authkit.Refresher.
func WithRetryOnUnauthenticated() AuthOption {
	return func(cfg *authConfig) { cfg.retry = true }
}

func newConfig(opts []AuthOption) *authConfig {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

func (cfg *authConfig) skip(ctx context.Context, method string) bool {
	return cfg.excludedMethods[method] || authkit.AuthSkipped(ctx)
}

// UnaryClientAuth returns a unary client interceptor that sends
// "authorization: Bearer <token>" metadata with every call.
func UnaryClientAuth(tp authkit.TokenProvider, opts ...AuthOption) grpc.UnaryClientInterceptor {
	cfg := newConfig(opts)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		if cfg.skip(ctx, method) {
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}

		authCtx, err := attach(ctx, tp)
		if err != nil {
			return err
		}
		err = invoker(authCtx, method, req, reply, cc, callOpts...)
		if !cfg.retry || status.Code(err) != codes.Unauthenticated {
			return err
		}

		r, ok := tp.(authkit.Refresher)
		if !ok || !r.Refresh(ctx) {
			return err
		}
		authCtx, aerr := attach(ctx, tp)
		if aerr != nil {
			return err
		}
		return invoker(authCtx, method, req, reply, cc, callOpts...)
	}
}

// StreamClientAuth returns a stream client interceptor that sends the bearer
// token when the stream is opened.
func StreamClientAuth(tp authkit.TokenProvider, opts ...AuthOption) grpc.StreamClientInterceptor {
	cfg := newConfig(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		if cfg.skip(ctx, method) {
			return streamer(ctx, desc, cc, method, callOpts...)
		}

		authCtx, err := attach(ctx, tp)
		if err != nil {
			return nil, err
		}
		return streamer(authCtx, desc, cc, method, callOpts...)
	}
}

// PerRPCCredentials adapts tp to grpc.WithPerRPCCredentials.
func PerRPCCredentials(tp authkit.TokenProvider, requireTLS bool) credentials.PerRPCCredentials {
	return &tokenCredentials{tp: tp, requireTLS: requireTLS}
}

type tokenCredentials struct {
	tp         authkit.TokenProvider
	requireTLS bool
}

func (c *tokenCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if authkit.AuthSkipped(ctx) {
		return nil, nil
	}
	tok, err := c.tp.AccessToken(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "access token unavailable: %v", err)
	}
	return map[string]string{"authorization": "Bearer " + tok}, nil
}

func (c *tokenCredentials) RequireTransportSecurity() bool {
	return c.requireTLS
}

// --- internal helpers ---

func attach(ctx context.Context, tp authkit.TokenProvider) (context.Context, error) {
	tok, err := tp.AccessToken(ctx)
	if err != nil {
		return ctx, status.Errorf(codes.Unauthenticated, "access token unavailable: %v", err)
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok), nil
}
