package fake

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	authkit "github.com/chimerakang/authkit-go"
)

// ConfirmationCode is accepted by every confirmation and reset step.
const ConfirmationCode = "123456"

// Operation names accepted by IdentityProvider.Fail and Calls.
const (
	OpSignIn                = "SignIn"
	OpRefresh               = "Refresh"
	OpSignUp                = "SignUp"
	OpConfirmSignUp         = "ConfirmSignUp"
	OpResendCode            = "ResendConfirmationCode"
	OpForgotPassword        = "ForgotPassword"
	OpConfirmForgotPassword = "ConfirmForgotPassword"
	OpChangePassword        = "ChangePassword"
	OpGlobalSignOut         = "GlobalSignOut"
)

// Account is a user known to the fake identity provider.
type Account struct {
	Sub           string
	Email         string
	Username      string
	Password      string
	EmailVerified bool
	PhoneNumber   string
	Confirmed     bool
}

// IdentityProvider is an in-memory authkit.IdentityProvider with Cognito-like errors.
type IdentityProvider struct {
	mu            sync.Mutex
	accounts      map[string]*Account // normalized email → account
	refreshTokens map[string]string   // refresh token → email
	accessTokens  map[string]string   // access token → email
	failures      map[string]error
	calls         map[string]int
	tokenTTL      time.Duration
	delay         time.Duration
	now           func() time.Time
	omitIDToken   bool
	nextID        int
}

// compile-time check
var _ authkit.IdentityProvider = (*IdentityProvider)(nil)

// IdentityProviderOption configures the fake provider.
type IdentityProviderOption func(*IdentityProvider)

// WithAccount registers a confirmed account.
func WithAccount(email, password string) IdentityProviderOption {
	return func(p *IdentityProvider) {
		p.AddAccount(Account{Email: email, Password: password, Confirmed: true, EmailVerified: true})
	}
}

// WithTokenTTL sets the lifetime of issued access and ID tokens. Default 1h.
func WithTokenTTL(d time.Duration) IdentityProviderOption {
	return func(p *IdentityProvider) { p.tokenTTL = d }
}

// WithClock sets the time source for token expiry.
func WithClock(now func() time.Time) IdentityProviderOption {
	return func(p *IdentityProvider) { p.now = now }
}

// NewIdentityProvider creates an empty fake provider.
func NewIdentityProvider(opts ...IdentityProviderOption) *IdentityProvider {
	p := &IdentityProvider{
		accounts:      make(map[string]*Account),
		refreshTokens: make(map[string]string),
		accessTokens:  make(map[string]string),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		tokenTTL:      time.Hour,
		now:           time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AddAccount registers acct. Missing Sub and Username are generated.
func (p *IdentityProvider) AddAccount(acct Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLocked(acct)
}

func (p *IdentityProvider) addLocked(acct Account) *Account {
	p.nextID++
	if acct.Sub == "" {
		acct.Sub = fmt.Sprintf("sub-%d", p.nextID)
	}
	if acct.Username == "" {
		acct.Username = acct.Sub
	}
	a := acct
	p.accounts[authkit.NormalizeEmail(acct.Email)] = &a
	return &a
}

// Account returns a copy of the account registered under email.
func (p *IdentityProvider) Account(email string) (Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[authkit.NormalizeEmail(email)]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// Fail makes every call to op return err until cleared with a nil err.
func (p *IdentityProvider) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// SetDelay makes every call block for d or until its context ends.
func (p *IdentityProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (p *IdentityProvider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// OmitIDTokenOnRefresh makes Refresh return only an access token.
func (p *IdentityProvider) OmitIDTokenOnRefresh(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omit
}

// Calls returns how many times op was invoked.
func (p *IdentityProvider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// RevokeRefreshTokens invalidates every refresh token issued to email.
func (p *IdentityProvider) RevokeRefreshTokens(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeLocked(authkit.NormalizeEmail(email))
}

func (p *IdentityProvider) revokeLocked(email string) {
	for rt, owner := range p.refreshTokens {
		if owner == email {
			delete(p.refreshTokens, rt)
		}
	}
}

// begin records the call, waits out the configured delay and returns any injected failure.
func (p *IdentityProvider) begin(ctx context.Context, op string) error {
	p.mu.Lock()
	p.calls[op]++
	delay := p.delay
	failure := p.failures[op]
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

// --- token issuance ---

func (p *IdentityProvider) issueLocked(a *Account, withRefresh, withID bool) *authkit.TokenSet {
	p.nextID++
	exp := p.now().Add(p.tokenTTL).Unix()

	access := Token(map[string]any{
		"sub":       a.Sub,
		"token_use": "access",
		"username":  a.Username,
		"exp":       exp,
		"jti":       fmt.Sprintf("at-%d", p.nextID),
	})
	p.accessTokens[access] = authkit.NormalizeEmail(a.Email)

	ts := &authkit.TokenSet{AccessToken: access, ExpiresIn: p.tokenTTL}
	if withID {
		claims := map[string]any{
			"sub":              a.Sub,
			"email":            a.Email,
			"cognito:username": a.Username,
			"email_verified":   a.EmailVerified,
			"token_use":        "id",
			"exp":              exp,
			"jti":              fmt.Sprintf("id-%d", p.nextID),
		}
		if a.PhoneNumber != "" {
			claims["phone_number"] = a.PhoneNumber
		}
		ts.IDToken = Token(claims)
	}
	if withRefresh {
		ts.RefreshToken = fmt.Sprintf("rt-%d", p.nextID)
		p.refreshTokens[ts.RefreshToken] = authkit.NormalizeEmail(a.Email)
	}
	return ts
}

// IssueTokens issues a full token set for a registered account without a password check.
func (p *IdentityProvider) IssueTokens(email string) (*authkit.TokenSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[authkit.NormalizeEmail(email)]
	if !ok {
		return nil, userNotFound()
	}
	return p.issueLocked(a, true, true), nil
}

// --- authkit.IdentityProvider ---

func (p *IdentityProvider) SignIn(ctx context.Context, username, password string) (*authkit.TokenSet, error) {
	if err := p.begin(ctx, OpSignIn); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[authkit.NormalizeEmail(username)]
	if !ok || a.Password != password {
		return nil, notAuthorized("Incorrect username or password.")
	}
	if !a.Confirmed {
		return nil, &authkit.APIError{Status: http.StatusBadRequest, Code: "UserNotConfirmedException", Message: "User is not confirmed."}
	}
	return p.issueLocked(a, true, true), nil
}

func (p *IdentityProvider) Refresh(ctx context.Context, refreshToken string) (*authkit.TokenSet, error) {
	if err := p.begin(ctx, OpRefresh); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.refreshTokens[refreshToken]
	if !ok {
		return nil, notAuthorized("Invalid Refresh Token")
	}
	a := p.accounts[email]
	if a == nil {
		return nil, notAuthorized("Invalid Refresh Token")
	}
	return p.issueLocked(a, false, !p.omitIDToken), nil
}

func (p *IdentityProvider) SignUp(ctx context.Context, username string, req authkit.SignUpRequest) (*authkit.SignUpResult, error) {
	if err := p.begin(ctx, OpSignUp); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := authkit.NormalizeEmail(username)
	if _, exists := p.accounts[key]; exists {
		return nil, &authkit.APIError{Status: http.StatusBadRequest, Code: "UsernameExistsException", Message: "An account with the given email already exists."}
	}
	a := p.addLocked(Account{Email: key, Password: req.Password, PhoneNumber: req.PhoneNumber})
	return &authkit.SignUpResult{
		Result:  authkit.Result{Success: true, Source: authkit.SourceProvider},
		UserSub: a.Sub,
	}, nil
}

func (p *IdentityProvider) ConfirmSignUp(ctx context.Context, username, code string) error {
	if err := p.begin(ctx, OpConfirmSignUp); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[authkit.NormalizeEmail(username)]
	if !ok {
		return userNotFound()
	}
	if code != ConfirmationCode {
		return codeMismatch()
	}
	a.Confirmed = true
	a.EmailVerified = true
	return nil
}

func (p *IdentityProvider) ResendConfirmationCode(ctx context.Context, username string) error {
	if err := p.begin(ctx, OpResendCode); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[authkit.NormalizeEmail(username)]; !ok {
		return userNotFound()
	}
	return nil
}

func (p *IdentityProvider) ForgotPassword(ctx context.Context, username string) error {
	if err := p.begin(ctx, OpForgotPassword); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[authkit.NormalizeEmail(username)]; !ok {
		return userNotFound()
	}
	return nil
}

func (p *IdentityProvider) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	if err := p.begin(ctx, OpConfirmForgotPassword); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[authkit.NormalizeEmail(username)]
	if !ok {
		return userNotFound()
	}
	if code != ConfirmationCode {
		return codeMismatch()
	}
	a.Password = newPassword
	return nil
}

func (p *IdentityProvider) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	if err := p.begin(ctx, OpChangePassword); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.accounts[p.accessTokens[accessToken]]
	if a == nil {
		return notAuthorized("Access Token has been revoked")
	}
	if a.Password != oldPassword {
		return notAuthorized("Incorrect username or password.")
	}
	a.Password = newPassword
	return nil
}

func (p *IdentityProvider) GlobalSignOut(ctx context.Context, accessToken string) error {
	if err := p.begin(ctx, OpGlobalSignOut); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.accessTokens[accessToken]
	if !ok {
		return notAuthorized("Access Token has been revoked")
	}
	p.revokeLocked(email)
	for at, owner := range p.accessTokens {
		if owner == email {
			delete(p.accessTokens, at)
		}
	}
	return nil
}

func notAuthorized(msg string) error {
	return &authkit.APIError{Status: http.StatusBadRequest, Code: "NotAuthorizedException", Message: msg}
}

func userNotFound() error {
	return &authkit.APIError{Status: http.StatusBadRequest, Code: "UserNotFoundException", Message: "Username/client id combination not found."}
}

func codeMismatch() error {
	return &authkit.APIError{Status: http.StatusBadRequest, Code: "CodeMismatchException", Message: "Invalid verification code provided, please try again."}
}
