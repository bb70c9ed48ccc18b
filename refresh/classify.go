package refresh

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	authkit "github.com/chimerakang/authkit-go"
)

// Class tells a transient refresh failure from a definitive rejection.
type Class int

const (
	// ClassNone is the class of a successful refresh.
	ClassNone Class = iota
	// ClassNetwork failures leave the session intact for a later retry.
	ClassNetwork
	// ClassAuth failures mean the refresh token is unusable; the session is cleared.
	ClassAuth
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var networkHints = []string{
	"network",
	"fetch",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"no such host",
	"offline",
}

// Classify sorts a refresh error. Transport failures, deadlines, provider 5xx
// and throttling are ClassNetwork; everything else is ClassAuth.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassNetwork
	}

	var apiErr *authkit.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status >= http.StatusInternalServerError:
			return ClassNetwork
		case apiErr.Status == http.StatusTooManyRequests:
			return ClassNetwork
		case apiErr.Status != 0:
			return ClassAuth
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range networkHints {
		if strings.Contains(msg, hint) {
			return ClassNetwork
		}
	}
	return ClassAuth
}
