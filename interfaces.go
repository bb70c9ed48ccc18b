package authkit

import "context"

// SecureTokenStore is encrypted key-value persistence with a fail-soft contract:
// a failed read reports the value as absent ("") and a failed write or delete is
// silently dropped. Implementations: store/ (adapter over pluggable backends), fake/ (testing).
type SecureTokenStore interface {
	// Get returns the stored value, or "" when absent or unreadable.
	Get(ctx context.Context, key string) string

	// Set stores value under key. Failures are absorbed.
	Set(ctx context.Context, key, value string)

	// Delete removes key. Failures are absorbed.
	Delete(ctx context.Context, key string)
}

// IdentityProvider issues, refreshes and revokes tokens and runs the account
// flows the backend API may not serve. Implementations: idp/cognito, idp/oidc, fake/.
//
// Errors carrying a provider status or error name should be returned as *APIError
// so refresh classification and flow fallback can inspect them.
type IdentityProvider interface {
	// SignIn runs the password grant. A nil TokenSet with a nil error means the
	// provider returned no result.
	SignIn(ctx context.Context, username, password string) (*TokenSet, error)

	// Refresh exchanges a refresh token for new access (and optionally ID) tokens.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// SignUp registers a new account using username as the provider username.
	SignUp(ctx context.Context, username string, req SignUpRequest) (*SignUpResult, error)

	// ConfirmSignUp confirms a registration with the emailed code.
	ConfirmSignUp(ctx context.Context, username, code string) error

	// ResendConfirmationCode re-sends the registration code.
	ResendConfirmationCode(ctx context.Context, username string) error

	// ForgotPassword starts a password reset.
	ForgotPassword(ctx context.Context, username string) error

	// ConfirmForgotPassword completes a password reset.
	ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error

	// ChangePassword changes the password of the user owning accessToken.
	ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error

	// GlobalSignOut invalidates every token issued to the user owning accessToken.
	GlobalSignOut(ctx context.Context, accessToken string) error
}

// BackendAPI is the companion backend, the primary path for account flows.
// Failures carry their HTTP status as *APIError. Implementations: backend/, fake/.
type BackendAPI interface {
	SmartSignUp(ctx context.Context, req SignUpRequest) (*BackendResult, error)
	ConfirmSignUp(ctx context.Context, email, code string) (*BackendResult, error)
	ResendConfirmationCode(ctx context.Context, email string) (*BackendResult, error)
	ForgotPassword(ctx context.Context, email string) (*BackendResult, error)
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) (*BackendResult, error)

	// Request performs a generic JSON call, used for federated sign-in.
	Request(ctx context.Context, path string, opts RequestOptions) (*BackendResult, error)
}

// TokenProvider hands out a currently valid access token.
// session.Manager implements it; middleware/ consumes it.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// SignOutHook clears state keyed by the identity of the user being signed out,
// such as a content feed cache. user is nil when no session was held.
type SignOutHook func(ctx context.Context, user *User)

// Refresher forces a token refresh and reports whether it succeeded.
// session.Manager implements it; middleware/ uses it to retry a rejected call once.
type Refresher interface {
	Refresh(ctx context.Context) bool
}
