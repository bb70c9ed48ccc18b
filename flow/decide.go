package flow

import (
	"errors"
	"net/http"
	"strings"

	authkit "github.com/chimerakang/authkit-go"
)

// decision is what to do with a failed backend call.
type decision int

const (
	propagate decision = iota
	fallback
)

// Fallback reasons, used as metric labels.
const (
	reasonNotFound      = "not_found"
	reasonUnrecognized  = "endpoint_unrecognized"
	reasonBadRequest    = "bad_request"
	reasonServerError   = "server_error"
	reasonNoStatus      = "no_status"
	reasonTransportFail = "transport"
)

var unrecognizedHints = []string{
	"endpoint not found",
	"route not found",
	"cannot post",
	"cannot get",
	"missing authentication token",
	"no route",
	"unrecognized",
	"unknown endpoint",
}

var validationHints = []string{
	"already exists",
	"invalid",
	"password",
	"required",
	"must",
	"validation",
}

// decide classifies a backend failure for op. Rate limiting is always
// propagated; sign-up additionally falls back on server-side failures and on
// 400s that do not carry a validation message.
func decide(op string, err error) (decision, string) {
	var apiErr *authkit.APIError
	if !errors.As(err, &apiErr) {
		if op == OpSignUp {
			return fallback, reasonTransportFail
		}
		return propagate, ""
	}

	msg := strings.ToLower(strings.TrimSpace(apiErr.Message))
	switch {
	case apiErr.Status == http.StatusTooManyRequests:
		return propagate, ""
	case apiErr.Status == http.StatusNotFound:
		return fallback, reasonNotFound
	case msg == "not found" || containsAny(msg, unrecognizedHints):
		return fallback, reasonUnrecognized
	case op != OpSignUp:
		return propagate, ""
	case apiErr.Status == http.StatusBadRequest && containsAny(msg, validationHints):
		return propagate, ""
	case apiErr.Status == http.StatusBadRequest:
		return fallback, reasonBadRequest
	case apiErr.Status >= http.StatusInternalServerError:
		return fallback, reasonServerError
	case apiErr.Status == 0:
		return fallback, reasonNoStatus
	default:
		return propagate, ""
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
