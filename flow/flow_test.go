package flow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/fake"
	"github.com/chimerakang/authkit-go/flow"
	"github.com/chimerakang/authkit-go/metrics"
)

func TestSignUp_ValidationErrorPropagates(t *testing.T) {
	backend := fake.NewBackend().OnStatus(authkit.PathSmartSignUp, 400, "Email already exists")
	idp := fake.NewIdentityProvider()
	o := flow.New(backend, idp)

	_, err := o.SignUp(context.Background(), authkit.SignUpRequest{Email: "a@b.c", Password: "pw"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Email already exists") {
		t.Errorf("expected backend message, got %v", err)
	}
	if authkit.StatusCode(err) != 400 {
		t.Errorf("expected status 400, got %d", authkit.StatusCode(err))
	}
	if calls := idp.Calls(fake.OpSignUp); calls != 0 {
		t.Errorf("expected no fallback, got %d provider calls", calls)
	}
}

func TestSignUp_404FallsBack(t *testing.T) {
	backend := fake.NewBackend().OnStatus(authkit.PathSmartSignUp, 404, "Not Found")
	idp := fake.NewIdentityProvider()
	reg := prometheus.NewRegistry()
	o := flow.New(backend, idp, flow.WithMetrics(metrics.New(reg)))

	res, err := o.SignUp(context.Background(), authkit.SignUpRequest{Email: "  Bob@Example.COM ", Password: "pw123456"})
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if !res.Success || res.Source != authkit.SourceProvider {
		t.Errorf("expected provider success, got %+v", res)
	}
	if res.UserSub == "" {
		t.Error("expected a user sub")
	}
	if calls := idp.Calls(fake.OpSignUp); calls != 1 {
		t.Errorf("expected 1 provider sign-up, got %d", calls)
	}
	if _, ok := idp.Account("bob@example.com"); !ok {
		t.Error("provider username should be the normalized email")
	}

	want := `
# HELP authkit_flow_fallbacks_total Total identity provider fallbacks by operation and reason
# TYPE authkit_flow_fallbacks_total counter
authkit_flow_fallbacks_total{operation="sign_up",reason="not_found"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "authkit_flow_fallbacks_total"); err != nil {
		t.Errorf("fallback metric: %v", err)
	}
}

func TestSignUp_ServerErrorFallsBack(t *testing.T) {
	backend := fake.NewBackend().OnStatus(authkit.PathSmartSignUp, 503, "Service Unavailable")
	idp := fake.NewIdentityProvider()

	res, err := flow.New(backend, idp).SignUp(context.Background(), authkit.SignUpRequest{Email: "c@d.e", Password: "pw"})
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if res.Source != authkit.SourceProvider {
		t.Errorf("expected provider source, got %s", res.Source)
	}
}

func TestSignUp_RateLimitedPropagates(t *testing.T) {
	backend := fake.NewBackend().OnStatus(authkit.PathSmartSignUp, 429, "Too Many Requests")
	idp := fake.NewIdentityProvider()

	_, err := flow.New(backend, idp).SignUp(context.Background(), authkit.SignUpRequest{Email: "a@b.c"})
	if !errors.Is(err, authkit.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if calls := idp.Calls(fake.OpSignUp); calls != 0 {
		t.Errorf("expected no fallback, got %d provider calls", calls)
	}
}

func TestSignUp_BackendSuccess(t *testing.T) {
	backend := fake.NewBackend().OnSuccess(authkit.PathSmartSignUp, map[string]any{
		"userSub":       "sub-42",
		"userConfirmed": false,
	})
	idp := fake.NewIdentityProvider()

	res, err := flow.New(backend, idp).SignUp(context.Background(), authkit.SignUpRequest{Email: "a@b.c"})
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if res.Source != authkit.SourceBackend || res.UserSub != "sub-42" {
		t.Errorf("expected backend result with sub-42, got %+v", res)
	}
	if calls := idp.Calls(fake.OpSignUp); calls != 0 {
		t.Errorf("expected no provider calls, got %d", calls)
	}
}

func TestSignUp_ProviderErrorAfterFallback(t *testing.T) {
	idp := fake.NewIdentityProvider(fake.WithAccount("taken@example.com", "pw"))
	_, err := flow.New(fake.NewBackend(), idp).SignUp(context.Background(), authkit.SignUpRequest{Email: "taken@example.com"})

	var apiErr *authkit.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != "UsernameExistsException" {
		t.Errorf("expected UsernameExistsException, got %s", apiErr.Code)
	}
}

func TestForgotPassword_AntiEnumeration(t *testing.T) {
	backend := fake.NewBackend().On(authkit.PathForgotPassword, &authkit.BackendResult{Success: false, Message: "User not found"}, nil)
	idp := fake.NewIdentityProvider()

	ok, err := flow.New(backend, idp).ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword() error: %v", err)
	}
	if !ok {
		t.Error("expected true for an unknown account")
	}
	if calls := idp.Calls(fake.OpForgotPassword); calls != 0 {
		t.Errorf("expected no provider calls, got %d", calls)
	}
}

func TestForgotPassword_Fallback(t *testing.T) {
	idp := fake.NewIdentityProvider(fake.WithAccount("alice@example.com", "pw"))

	ok, err := flow.New(fake.NewBackend(), idp).ForgotPassword(context.Background(), "ALICE@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword() error: %v", err)
	}
	if !ok {
		t.Error("expected true")
	}
	if calls := idp.Calls(fake.OpForgotPassword); calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
}

func TestForgotPassword_RateLimited(t *testing.T) {
	backend := fake.NewBackend().OnStatus(authkit.PathForgotPassword, 429, "slow down")

	ok, err := flow.New(backend, fake.NewIdentityProvider()).ForgotPassword(context.Background(), "a@b.c")
	if ok {
		t.Error("expected false")
	}
	if !errors.Is(err, authkit.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestConfirmSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("backend", func(t *testing.T) {
		backend := fake.NewBackend().On(authkit.PathConfirmSignUp, &authkit.BackendResult{Success: true, Message: "Confirmed"}, nil)
		res, err := flow.New(backend, fake.NewIdentityProvider()).ConfirmSignUp(ctx, "a@b.c", "123456")
		if err != nil {
			t.Fatalf("ConfirmSignUp() error: %v", err)
		}
		want := authkit.Result{Success: true, Message: "Confirmed", Source: authkit.SourceBackend}
		if *res != want {
			t.Errorf("expected %+v, got %+v", want, *res)
		}
	})

	t.Run("backend unsuccessful is an error", func(t *testing.T) {
		backend := fake.NewBackend().On(authkit.PathConfirmSignUp, &authkit.BackendResult{Success: false, Message: "Invalid code"}, nil)
		_, err := flow.New(backend, fake.NewIdentityProvider()).ConfirmSignUp(ctx, "a@b.c", "000000")
		if err == nil || !strings.Contains(err.Error(), "Invalid code") {
			t.Errorf("expected error with backend message, got %v", err)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		idp := fake.NewIdentityProvider()
		if _, err := idp.SignUp(ctx, "new@example.com", authkit.SignUpRequest{Password: "pw"}); err != nil {
			t.Fatalf("SignUp() error: %v", err)
		}

		res, err := flow.New(fake.NewBackend(), idp).ConfirmSignUp(ctx, "New@Example.com", fake.ConfirmationCode)
		if err != nil {
			t.Fatalf("ConfirmSignUp() error: %v", err)
		}
		if res.Source != authkit.SourceProvider {
			t.Errorf("expected provider source, got %s", res.Source)
		}
		if acct, _ := idp.Account("new@example.com"); !acct.Confirmed {
			t.Error("expected account confirmed")
		}
	})

	t.Run("server error propagates", func(t *testing.T) {
		backend := fake.NewBackend().OnStatus(authkit.PathConfirmSignUp, 500, "boom")
		idp := fake.NewIdentityProvider()
		_, err := flow.New(backend, idp).ConfirmSignUp(ctx, "a@b.c", "123456")
		if authkit.StatusCode(err) != 500 {
			t.Errorf("expected status 500, got %v", err)
		}
		if calls := idp.Calls(fake.OpConfirmSignUp); calls != 0 {
			t.Errorf("expected no fallback, got %d provider calls", calls)
		}
	})
}

func TestResendConfirmationCode_Fallback(t *testing.T) {
	idp := fake.NewIdentityProvider(fake.WithAccount("alice@example.com", "pw"))
	backend := fake.NewBackend().OnStatus(authkit.PathResendCode, 403, "Missing Authentication Token")

	res, err := flow.New(backend, idp).ResendConfirmationCode(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ResendConfirmationCode() error: %v", err)
	}
	if res.Source != authkit.SourceProvider {
		t.Errorf("expected provider source, got %s", res.Source)
	}
	if calls := idp.Calls(fake.OpResendCode); calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
}

func TestConfirmForgotPassword_Fallback(t *testing.T) {
	idp := fake.NewIdentityProvider(fake.WithAccount("alice@example.com", "old"))

	res, err := flow.New(fake.NewBackend(), idp).ConfirmForgotPassword(context.Background(), "alice@example.com", fake.ConfirmationCode, "new-pass")
	if err != nil {
		t.Fatalf("ConfirmForgotPassword() error: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if acct, _ := idp.Account("alice@example.com"); acct.Password != "new-pass" {
		t.Errorf("expected password reset, got %s", acct.Password)
	}
}

func TestNilBackendUsesProvider(t *testing.T) {
	idp := fake.NewIdentityProvider()
	o := flow.New(nil, idp)
	ctx := context.Background()

	res, err := o.SignUp(ctx, authkit.SignUpRequest{Email: "new@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if res.Source != authkit.SourceProvider {
		t.Errorf("expected provider source, got %s", res.Source)
	}

	r, err := o.ConfirmSignUp(ctx, "new@example.com", fake.ConfirmationCode)
	if err != nil {
		t.Fatalf("ConfirmSignUp() error: %v", err)
	}
	if r.Source != authkit.SourceProvider {
		t.Errorf("expected provider source, got %s", r.Source)
	}

	if ok, err := o.ForgotPassword(ctx, "new@example.com"); err != nil || !ok {
		t.Errorf("ForgotPassword() = %v, %v; want true, nil", ok, err)
	}
}
