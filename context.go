package authkit

import "context"

type ctxKey string

const ctxKeySkipAuth ctxKey = "authkit_skip_auth"

// WithoutAuth marks ctx so outbound middleware sends the call without a bearer
// token, for public endpoints such as sign-up.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeySkipAuth, true)
}

// AuthSkipped reports whether ctx was marked with WithoutAuth.
func AuthSkipped(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeySkipAuth).(bool)
	return v
}
