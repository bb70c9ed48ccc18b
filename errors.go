package authkit

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedToken means a token is not a three-segment JWT with a JSON payload.
	ErrMalformedToken = errors.New("authkit: malformed token")
	// ErrAuthenticationFailed means the provider returned no sign-in result.
	ErrAuthenticationFailed = errors.New("authkit: authentication failed")
	// ErrNoTokensReceived means a sign-in result lacked an access or ID token.
	ErrNoTokensReceived = errors.New("authkit: no tokens received")
	// ErrNoAuthenticatedUser means the operation requires a session and none exists.
	ErrNoAuthenticatedUser = errors.New("authkit: no authenticated user")
	// ErrRateLimited matches any *APIError with status 429.
	ErrRateLimited = errors.New("authkit: rate limited")
	// ErrNoRefreshToken means the session cannot be refreshed.
	ErrNoRefreshToken = errors.New("authkit: no refresh token")
	// ErrUnsupported means the collaborator does not implement the operation.
	ErrUnsupported = errors.New("authkit: operation not supported")
)

// APIError is a failure reported by the identity provider or the backend API.
// Status is the HTTP status, or 0 when the failure carried none.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("%s (%d %s)", msg, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("%s (%d)", msg, e.Status)
	case e.Code != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return msg
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports rate-limit responses as ErrRateLimited.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// StatusCode returns the status attached to err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
