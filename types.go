package authkit

import (
	"strings"
	"time"
)

// Storage keys under which a session is persisted in the SecureTokenStore.
const (
	KeyAccessToken  = "authkit.access_token"
	KeyRefreshToken = "authkit.refresh_token"
	KeyIDToken      = "authkit.id_token"
	KeyUser         = "authkit.user"
)

// SessionKeys lists every key a session occupies, in persistence order.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyIDToken, KeyUser}

// User is the authenticated principal derived from an ID token.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Username      string         `json:"username"`
	EmailVerified bool           `json:"emailVerified"`
	PhoneNumber   *string        `json:"phoneNumber,omitempty"`
	Attributes    map[string]any `json:"attributes"`
}

// Session is the complete authenticated state. It is replaced as a whole;
// RefreshToken may be empty for federated sign-ins.
type Session struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	User         *User
}

// TokenSet is the result of a password, refresh or federated grant.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// State is the externally observable session state.
type State int

const (
	StateSignedOut State = iota
	StateRestoring
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateRestoring:
		return "restoring"
	case StateSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// SignUpRequest carries a new account's credentials and profile attributes.
type SignUpRequest struct {
	Email       string            `json:"email"`
	Password    string            `json:"password"`
	Name        string            `json:"name,omitempty"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Source identifies which collaborator produced a flow result.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceProvider Source = "provider"
)

// Result is the outcome of a credential flow operation.
type Result struct {
	Success bool
	Message string
	Source  Source
}

// SignUpResult is the outcome of a sign-up.
type SignUpResult struct {
	Result
	UserSub       string
	UserConfirmed bool
}

// BackendResult is the decoded {success, message?, ...} envelope returned by the backend API.
type BackendResult struct {
	Success bool
	Message string
	Data    map[string]any
}

// String returns the string field name from Data, or "" when absent or not a string.
func (r *BackendResult) String(name string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	v, _ := r.Data[name].(string)
	return v
}

// Bool returns the boolean field name from Data.
func (r *BackendResult) Bool(name string) bool {
	if r == nil || r.Data == nil {
		return false
	}
	v, _ := r.Data[name].(bool)
	return v
}

// RequestOptions configures a generic backend request.
type RequestOptions struct {
	Method        string
	Body          any
	Authenticated bool
}

// AppleCredential is what Sign in with Apple hands the application.
type AppleCredential struct {
	IdentityToken     string `json:"identityToken"`
	AuthorizationCode string `json:"authorizationCode"`
	Nonce             string `json:"nonce,omitempty"`
	Email             string `json:"email,omitempty"`
	FullName          string `json:"fullName,omitempty"`
}

// NormalizeEmail trims and lowercases an email so it can be used as a provider username.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Backend API routes.
const (
	PathSmartSignUp           = "/auth/smart-signup"
	PathConfirmSignUp         = "/auth/confirm-signup"
	PathResendCode            = "/auth/resend-code"
	PathForgotPassword        = "/auth/forgot-password"
	PathConfirmForgotPassword = "/auth/confirm-forgot-password"
	PathAppleSignIn           = "/auth/apple"
	PathGoogleSignIn          = "/auth/google"
)
