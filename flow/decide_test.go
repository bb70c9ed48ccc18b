package flow

import (
	"errors"
	"testing"

	authkit "github.com/chimerakang/authkit-go"
)

func TestDecide(t *testing.T) {
	api := func(status int, msg string) error { return &authkit.APIError{Status: status, Message: msg} }

	tests := []struct {
		name string
		op   string
		err  error
		want decision
	}{
		{"429 sign-up", OpSignUp, api(429, "Too Many Requests"), propagate},
		{"429 forgot", OpForgotPassword, api(429, "slow down"), propagate},
		{"429 with route message", OpSignUp, api(429, "Not Found"), propagate},
		{"404 confirm", OpConfirmSignUp, api(404, ""), fallback},
		{"404 sign-up", OpSignUp, api(404, "Not Found"), fallback},
		{"api gateway missing route", OpResendCode, api(403, "Missing Authentication Token"), fallback},
		{"express cannot post", OpConfirmForgotPassword, api(400, "Cannot POST /auth/confirm-forgot-password"), fallback},
		{"bare not found message", OpForgotPassword, api(0, "Not Found"), fallback},
		{"user not found is not a routing error", OpConfirmSignUp, api(400, "User not found"), propagate},
		{"400 validation sign-up", OpSignUp, api(400, "Email already exists"), propagate},
		{"400 password policy sign-up", OpSignUp, api(400, "Password must contain a number"), propagate},
		{"400 other sign-up", OpSignUp, api(400, "Bad Request"), fallback},
		{"400 confirm", OpConfirmSignUp, api(400, "Bad Request"), propagate},
		{"500 sign-up", OpSignUp, api(500, "Internal Server Error"), fallback},
		{"502 sign-up", OpSignUp, api(502, ""), fallback},
		{"500 confirm", OpConfirmSignUp, api(500, "boom"), propagate},
		{"no status sign-up", OpSignUp, api(0, "socket hang up"), fallback},
		{"no status resend", OpResendCode, api(0, "socket hang up"), propagate},
		{"transport sign-up", OpSignUp, errors.New("dial tcp: connection refused"), fallback},
		{"transport forgot", OpForgotPassword, errors.New("dial tcp: connection refused"), propagate},
		{"401 sign-up", OpSignUp, api(401, "Unauthorized"), propagate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := decide(tt.op, tt.err); got != tt.want {
				t.Errorf("decide(%s, %v) = %v, want %v", tt.op, tt.err, got, tt.want)
			}
		})
	}
}
