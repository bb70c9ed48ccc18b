package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	authkit "github.com/chimerakang/authkit-go"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"deadline", context.DeadlineExceeded, ClassNetwork},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ClassNetwork},
		{"eof", io.ErrUnexpectedEOF, ClassNetwork},
		{"conn refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ClassNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "idp.example.com"}, ClassNetwork},
		{"url error", &url.Error{Op: "Post", URL: "https://idp", Err: errors.New("tls handshake")}, ClassNetwork},
		{"fetch message", errors.New("oauth2: cannot fetch token: dial tcp"), ClassNetwork},
		{"network message", errors.New("Network request failed"), ClassNetwork},
		{"timeout message", errors.New("request timed out"), ClassNetwork},
		{"provider 503", &authkit.APIError{Status: 503, Code: "InternalErrorException"}, ClassNetwork},
		{"provider 429", &authkit.APIError{Status: 429, Code: "TooManyRequestsException"}, ClassNetwork},
		{"not authorized", &authkit.APIError{Status: 400, Code: "NotAuthorizedException", Message: "Refresh Token has expired"}, ClassAuth},
		{"invalid grant", &authkit.APIError{Status: 400, Code: "invalid_grant"}, ClassAuth},
		{"status-less api error", &authkit.APIError{Code: "NotAuthorizedException", Message: "Invalid Refresh Token"}, ClassAuth},
		{"no refresh token", authkit.ErrNoRefreshToken, ClassAuth},
		{"plain rejection", errors.New("token revoked"), ClassAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
