package fake

import (
	"context"
	"net/http"
	"sync"

	authkit "github.com/chimerakang/authkit-go"
)

// Request is a call recorded by Backend.
type Request struct {
	Path string
	Opts authkit.RequestOptions
}

type response struct {
	result *authkit.BackendResult
	err    error
}

// Backend is a scripted authkit.BackendAPI. Unscripted routes answer 404.
type Backend struct {
	mu        sync.Mutex
	responses map[string]response
	requests  []Request
}

// compile-time check
var _ authkit.BackendAPI = (*Backend)(nil)

// NewBackend creates a backend with no routes.
func NewBackend() *Backend {
	return &Backend{responses: make(map[string]response)}
}

// On scripts the answer for path.
func (b *Backend) On(path string, result *authkit.BackendResult, err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[path] = response{result: result, err: err}
	return b
}

// OnSuccess scripts a {success:true} answer carrying data for path.
func (b *Backend) OnSuccess(path string, data map[string]any) *Backend {
	return b.On(path, &authkit.BackendResult{Success: true, Data: data}, nil)
}

// OnStatus scripts an *authkit.APIError answer for path.
func (b *Backend) OnStatus(path string, status int, message string) *Backend {
	return b.On(path, nil, &authkit.APIError{Status: status, Message: message})
}

// Calls returns how many requests hit path.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, r := range b.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Requests returns every recorded request in order.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

func (b *Backend) call(ctx context.Context, path string, opts authkit.RequestOptions) (*authkit.BackendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, Request{Path: path, Opts: opts})
	r, ok := b.responses[path]
	if !ok {
		return nil, &authkit.APIError{Status: http.StatusNotFound, Message: "Not Found"}
	}
	return r.result, r.err
}

func post(body any) authkit.RequestOptions {
	return authkit.RequestOptions{Method: http.MethodPost, Body: body}
}

func (b *Backend) SmartSignUp(ctx context.Context, req authkit.SignUpRequest) (*authkit.BackendResult, error) {
	return b.call(ctx, authkit.PathSmartSignUp, post(req))
}

func (b *Backend) ConfirmSignUp(ctx context.Context, email, code string) (*authkit.BackendResult, error) {
	return b.call(ctx, authkit.PathConfirmSignUp, post(map[string]string{"email": email, "code": code}))
}

func (b *Backend) ResendConfirmationCode(ctx context.Context, email string) (*authkit.BackendResult, error) {
	return b.call(ctx, authkit.PathResendCode, post(map[string]string{"email": email}))
}

func (b *Backend) ForgotPassword(ctx context.Context, email string) (*authkit.BackendResult, error) {
	return b.call(ctx, authkit.PathForgotPassword, post(map[string]string{"email": email}))
}

func (b *Backend) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) (*authkit.BackendResult, error) {
	return b.call(ctx, authkit.PathConfirmForgotPassword, post(map[string]string{
		"email": email, "code": code, "newPassword": newPassword,
	}))
}

func (b *Backend) Request(ctx context.Context, path string, opts authkit.RequestOptions) (*authkit.BackendResult, error) {
	return b.call(ctx, path, opts)
}
