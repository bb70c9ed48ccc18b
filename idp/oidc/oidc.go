// Package oidc implements authkit.IdentityProvider against a generic OpenID Connect
// provider using the resource owner password and refresh token grants.
//
// Account flows (sign-up, confirmation, password reset and change) have no standard
// OIDC endpoint and return authkit.ErrUnsupported; pair this provider with a
// backend that serves them.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	authkit "github.com/chimerakang/authkit-go"
)

// Config identifies the provider and the client.
type Config struct {
	Issuer       string   `mapstructure:"issuer" yaml:"issuer"`
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"-"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes,omitempty"`
	// VerifyIDToken checks ID token signatures against the provider JWKS.
	VerifyIDToken bool `mapstructure:"verify_id_token" yaml:"verify_id_token"`
}

// Client is an OIDC identity provider.
type Client struct {
	oauth         oauth2.Config
	clientID      string
	clientSecret  string
	verifier      *gooidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	logger        *slog.Logger
}

// compile-time check
var _ authkit.IdentityProvider = (*Client)(nil)

// Option configures the Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for discovery and token calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// New discovers the provider at cfg.Issuer and returns a client for it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("authkit/oidc: issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("authkit/oidc: client id is required")
	}

	o := clientOptions{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, o.httpClient), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("authkit/oidc: discover %s: %w", cfg.Issuer, err)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("authkit/oidc: decode discovery document: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile", gooidc.ScopeOfflineAccess}
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		revocationURL: extra.RevocationEndpoint,
		httpClient:    o.httpClient,
		logger:        o.logger,
	}
	if cfg.VerifyIDToken {
		c.verifier = provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	}
	return c, nil
}

func (c *Client) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) SignIn(ctx context.Context, username, password string) (*authkit.TokenSet, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.withClient(ctx), username, password)
	if err != nil {
		return nil, mapError("sign in", err)
	}
	return c.tokenSet(ctx, tok)
}

// Refresh runs the refresh_token grant. When the provider does not rotate the
// refresh token the result carries the one passed in.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authkit.TokenSet, error) {
	tok, err := c.oauth.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapError("refresh", err)
	}
	return c.tokenSet(ctx, tok)
}

func (c *Client) tokenSet(ctx context.Context, tok *oauth2.Token) (*authkit.TokenSet, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken != "" && c.verifier != nil {
		if _, err := c.verifier.Verify(gooidc.ClientContext(ctx, c.httpClient), idToken); err != nil {
			return nil, fmt.Errorf("authkit/oidc: verify id token: %w", err)
		}
	}
	ts := &authkit.TokenSet{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	return ts, nil
}

func unsupported(op string) error {
	return fmt.Errorf("authkit/oidc: %s: %w", op, authkit.ErrUnsupported)
}

func (c *Client) SignUp(context.Context, string, authkit.SignUpRequest) (*authkit.SignUpResult, error) {
	return nil, unsupported("sign up")
}

func (c *Client) ConfirmSignUp(context.Context, string, string) error {
	return unsupported("confirm sign up")
}

func (c *Client) ResendConfirmationCode(context.Context, string) error {
	return unsupported("resend confirmation code")
}

func (c *Client) ForgotPassword(context.Context, string) error {
	return unsupported("forgot password")
}

func (c *Client) ConfirmForgotPassword(context.Context, string, string, string) error {
	return unsupported("confirm forgot password")
}

func (c *Client) ChangePassword(context.Context, string, string, string) error {
	return unsupported("change password")
}

// GlobalSignOut revokes accessToken at the provider's RFC 7009 revocation endpoint.
func (c *Client) GlobalSignOut(ctx context.Context, accessToken string) error {
	if c.revocationURL == "" {
		return unsupported("revoke token")
	}

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {c.clientID},
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("authkit/oidc: revoke token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authkit/oidc: revoke token: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("token revocation rejected", "status", resp.StatusCode)
		return &authkit.APIError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}
	return nil
}

// mapError converts token endpoint rejections into *authkit.APIError.
func mapError(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("authkit/oidc: %s: %w", op, err)
	}
	out := &authkit.APIError{
		Code:    re.ErrorCode,
		Message: re.ErrorDescription,
		Err:     err,
	}
	if out.Message == "" {
		out.Message = re.ErrorCode
	}
	if re.Response != nil {
		out.Status = re.Response.StatusCode
	}
	return out
}
