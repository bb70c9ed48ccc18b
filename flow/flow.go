// Package flow runs the account flows (sign-up, confirmation, password reset)
// against the backend API first and falls back to the identity provider when
// the backend cannot serve the request.
package flow

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/metrics"
)

// Operation names, used in logs, metrics and audit events.
const (
	OpSignUp                = "sign_up"
	OpConfirmSignUp         = "confirm_sign_up"
	OpResendCode            = "resend_confirmation_code"
	OpForgotPassword        = "forgot_password"
	OpConfirmForgotPassword = "confirm_forgot_password"
)

// Orchestrator executes account flows with backend-first, provider-fallback semantics.
type Orchestrator struct {
	backend authkit.BackendAPI
	idp     authkit.IdentityProvider
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics counts calls per source and fallbacks per reason.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithAudit records fallbacks.
func WithAudit(a *audit.Logger) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// New creates an orchestrator. A nil backend sends every flow to the identity provider.
func New(backend authkit.BackendAPI, idp authkit.IdentityProvider, opts ...Option) *Orchestrator {
	if backend == nil {
		backend = noBackend{}
	}
	o := &Orchestrator{
		backend: backend,
		idp:     idp,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SignUp registers an account. The provider fallback uses the normalized email
// as the provider username.
func (o *Orchestrator) SignUp(ctx context.Context, req authkit.SignUpRequest) (*authkit.SignUpResult, error) {
	res, err := o.backend.SmartSignUp(ctx, req)
	if err == nil {
		if err := unsuccessful(res); err != nil {
			return nil, err
		}
		o.metrics.RecordFlowCall(OpSignUp, string(authkit.SourceBackend))
		return &authkit.SignUpResult{
			Result:        backendResult(res),
			UserSub:       res.String("userSub"),
			UserConfirmed: res.Bool("userConfirmed"),
		}, nil
	}
	if !o.shouldFallback(ctx, OpSignUp, err) {
		return nil, err
	}

	out, err := o.idp.SignUp(ctx, authkit.NormalizeEmail(req.Email), req)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordFlowCall(OpSignUp, string(authkit.SourceProvider))
	out.Success = true
	out.Source = authkit.SourceProvider
	return out, nil
}

// ConfirmSignUp confirms a registration with the emailed code.
func (o *Orchestrator) ConfirmSignUp(ctx context.Context, email, code string) (*authkit.Result, error) {
	return o.run(ctx, OpConfirmSignUp,
		func() (*authkit.BackendResult, error) { return o.backend.ConfirmSignUp(ctx, email, code) },
		func(username string) error { return o.idp.ConfirmSignUp(ctx, username, code) },
		email)
}

// ResendConfirmationCode re-sends the registration code.
func (o *Orchestrator) ResendConfirmationCode(ctx context.Context, email string) (*authkit.Result, error) {
	return o.run(ctx, OpResendCode,
		func() (*authkit.BackendResult, error) { return o.backend.ResendConfirmationCode(ctx, email) },
		func(username string) error { return o.idp.ResendConfirmationCode(ctx, username) },
		email)
}

// ForgotPassword starts a password reset. A backend answer of {success:false}
// is reported as success so callers cannot tell whether the account exists.
func (o *Orchestrator) ForgotPassword(ctx context.Context, email string) (bool, error) {
	res, err := o.backend.ForgotPassword(ctx, email)
	if err == nil {
		if res == nil || !res.Success {
			o.logger.Debug("forgot-password not successful at backend, reporting success")
		}
		o.metrics.RecordFlowCall(OpForgotPassword, string(authkit.SourceBackend))
		return true, nil
	}
	if !o.shouldFallback(ctx, OpForgotPassword, err) {
		return false, err
	}

	if err := o.idp.ForgotPassword(ctx, authkit.NormalizeEmail(email)); err != nil {
		return false, err
	}
	o.metrics.RecordFlowCall(OpForgotPassword, string(authkit.SourceProvider))
	return true, nil
}

// ConfirmForgotPassword completes a password reset.
func (o *Orchestrator) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) (*authkit.Result, error) {
	return o.run(ctx, OpConfirmForgotPassword,
		func() (*authkit.BackendResult, error) {
			return o.backend.ConfirmForgotPassword(ctx, email, code, newPassword)
		},
		func(username string) error { return o.idp.ConfirmForgotPassword(ctx, username, code, newPassword) },
		email)
}

// run is the shared backend-then-provider sequence for flows whose provider
// call returns only an error.
func (o *Orchestrator) run(
	ctx context.Context,
	op string,
	primary func() (*authkit.BackendResult, error),
	secondary func(username string) error,
	email string,
) (*authkit.Result, error) {
	res, err := primary()
	if err == nil {
		if err := unsuccessful(res); err != nil {
			return nil, err
		}
		o.metrics.RecordFlowCall(op, string(authkit.SourceBackend))
		r := backendResult(res)
		return &r, nil
	}
	if !o.shouldFallback(ctx, op, err) {
		return nil, err
	}

	if err := secondary(authkit.NormalizeEmail(email)); err != nil {
		return nil, err
	}
	o.metrics.RecordFlowCall(op, string(authkit.SourceProvider))
	return &authkit.Result{Success: true, Source: authkit.SourceProvider}, nil
}

func (o *Orchestrator) shouldFallback(ctx context.Context, op string, err error) bool {
	d, reason := decide(op, err)
	if d != fallback {
		o.logger.Debug("backend error propagated", "op", op, "error", err)
		return false
	}
	o.metrics.RecordFallback(op, reason)
	o.audit.Log(audit.Event{
		RequestID: audit.RequestID(ctx),
		Action:    audit.ActionFlowFallback,
		Method:    op,
		Result:    audit.ResultSuccess,
		Details:   reason,
		Error:     err.Error(),
	})
	o.logger.Info("backend unavailable, falling back to identity provider", "op", op, "reason", reason, "error", err)
	return true
}

// unsuccessful turns a {success:false} backend answer into an error carrying its message.
func unsuccessful(res *authkit.BackendResult) error {
	if res != nil && res.Success {
		return nil
	}
	msg := "request was not successful"
	if res != nil && res.Message != "" {
		msg = res.Message
	}
	return &authkit.APIError{Code: "unsuccessful", Message: msg}
}

func backendResult(res *authkit.BackendResult) authkit.Result {
	return authkit.Result{Success: true, Message: res.Message, Source: authkit.SourceBackend}
}

// noBackend answers every call like a server without the route.
type noBackend struct{}

func (noBackend) err() error {
	return &authkit.APIError{Status: http.StatusNotFound, Message: "not found"}
}

func (b noBackend) SmartSignUp(context.Context, authkit.SignUpRequest) (*authkit.BackendResult, error) {
	return nil, b.err()
}

func (b noBackend) ConfirmSignUp(context.Context, string, string) (*authkit.BackendResult, error) {
	return nil, b.err()
}

func (b noBackend) ResendConfirmationCode(context.Context, string) (*authkit.BackendResult, error) {
	return nil, b.err()
}

func (b noBackend) ForgotPassword(context.Context, string) (*authkit.BackendResult, error) {
	return nil, b.err()
}

func (b noBackend) ConfirmForgotPassword(context.Context, string, string, string) (*authkit.BackendResult, error) {
	return nil, b.err()
}

func (b noBackend) Request(context.Context, string, authkit.RequestOptions) (*authkit.BackendResult, error) {
	return nil, b.err()
}
