// Package cognito implements authkit.IdentityProvider against an AWS Cognito user pool
// using the public (unsigned) user pool APIs.
package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	authkit "github.com/chimerakang/authkit-go"
)

// Config identifies the user pool app client.
type Config struct {
	Region       string `mapstructure:"region" yaml:"region"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"-"`
	// Endpoint overrides the regional endpoint, for local emulators and tests.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// api is the subset of the Cognito client used here.
type api interface {
	InitiateAuth(context.Context, *cip.InitiateAuthInput, ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	SignUp(context.Context, *cip.SignUpInput, ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(context.Context, *cip.ConfirmSignUpInput, ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(context.Context, *cip.ResendConfirmationCodeInput, ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	ForgotPassword(context.Context, *cip.ForgotPasswordInput, ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(context.Context, *cip.ConfirmForgotPasswordInput, ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	ChangePassword(context.Context, *cip.ChangePasswordInput, ...func(*cip.Options)) (*cip.ChangePasswordOutput, error)
	GlobalSignOut(context.Context, *cip.GlobalSignOutInput, ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
}

// Client is a Cognito user pool identity provider.
type Client struct {
	cfg    Config
	api    api
	logger *slog.Logger
}

// compile-time check
var _ authkit.IdentityProvider = (*Client)(nil)

// Option configures the Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient  aws.HTTPClient
	logger      *slog.Logger
	maxAttempts int
}

// WithHTTPClient sets the HTTP client used for Cognito calls.
func WithHTTPClient(c aws.HTTPClient) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithMaxAttempts bounds SDK-level retries of a single call. Default 3.
func WithMaxAttempts(n int) Option {
	return func(o *clientOptions) { o.maxAttempts = n }
}

// New creates a Cognito identity provider.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Region == "" {
		return nil, errors.New("authkit/cognito: region is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("authkit/cognito: client id is required")
	}

	o := clientOptions{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := cip.Options{
		Region:           cfg.Region,
		Credentials:      aws.AnonymousCredentials{},
		HTTPClient:       o.httpClient,
		RetryMaxAttempts: o.maxAttempts,
	}
	if cfg.Endpoint != "" {
		apiOpts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Client{
		cfg:    cfg,
		api:    cip.New(apiOpts),
		logger: o.logger,
	}, nil
}

// secretHash computes SECRET_HASH for app clients that have a secret.
func (c *Client) secretHash(username string) *string {
	if c.cfg.ClientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.ClientSecret))
	mac.Write([]byte(username + c.cfg.ClientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func (c *Client) SignIn(ctx context.Context, username, password string) (*authkit.TokenSet, error) {
	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	if h := c.secretHash(username); h != nil {
		params["SECRET_HASH"] = *h
	}

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(c.cfg.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, mapError("sign in", err)
	}
	if out.ChallengeName != "" {
		return nil, fmt.Errorf("%w: challenge %s required", authkit.ErrAuthenticationFailed, out.ChallengeName)
	}
	return tokenSet(out.AuthenticationResult), nil
}

// Refresh runs REFRESH_TOKEN_AUTH. Cognito does not rotate refresh tokens, so the
// result carries none.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authkit.TokenSet, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{"REFRESH_TOKEN": refreshToken},
	})
	if err != nil {
		return nil, mapError("refresh", err)
	}
	return tokenSet(out.AuthenticationResult), nil
}

func (c *Client) SignUp(ctx context.Context, username string, req authkit.SignUpRequest) (*authkit.SignUpResult, error) {
	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(c.cfg.ClientID),
		Username:       aws.String(username),
		Password:       aws.String(req.Password),
		SecretHash:     c.secretHash(username),
		UserAttributes: attributes(req),
	})
	if err != nil {
		return nil, mapError("sign up", err)
	}
	return &authkit.SignUpResult{
		Result:        authkit.Result{Success: true, Source: authkit.SourceProvider},
		UserSub:       aws.ToString(out.UserSub),
		UserConfirmed: out.UserConfirmed,
	}, nil
}

func (c *Client) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.cfg.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       c.secretHash(username),
	})
	return mapError("confirm sign up", err)
}

func (c *Client) ResendConfirmationCode(ctx context.Context, username string) error {
	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(c.cfg.ClientID),
		Username:   aws.String(username),
		SecretHash: c.secretHash(username),
	})
	return mapError("resend confirmation code", err)
}

func (c *Client) ForgotPassword(ctx context.Context, username string) error {
	_, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(c.cfg.ClientID),
		Username:   aws.String(username),
		SecretHash: c.secretHash(username),
	})
	return mapError("forgot password", err)
}

func (c *Client) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.cfg.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       c.secretHash(username),
	})
	return mapError("confirm forgot password", err)
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	_, err := c.api.ChangePassword(ctx, &cip.ChangePasswordInput{
		AccessToken:      aws.String(accessToken),
		PreviousPassword: aws.String(oldPassword),
		ProposedPassword: aws.String(newPassword),
	})
	return mapError("change password", err)
}

func (c *Client) GlobalSignOut(ctx context.Context, accessToken string) error {
	_, err := c.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	return mapError("global sign out", err)
}

func tokenSet(res *types.AuthenticationResultType) *authkit.TokenSet {
	if res == nil {
		return nil
	}
	return &authkit.TokenSet{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		ExpiresIn:    time.Duration(res.ExpiresIn) * time.Second,
	}
}

func attributes(req authkit.SignUpRequest) []types.AttributeType {
	attrs := []types.AttributeType{{Name: aws.String("email"), Value: aws.String(authkit.NormalizeEmail(req.Email))}}
	if req.Name != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("name"), Value: aws.String(req.Name)})
	}
	if req.PhoneNumber != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(req.PhoneNumber)})
	}
	names := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, types.AttributeType{Name: aws.String(name), Value: aws.String(req.Attributes[name])})
	}
	return attrs
}

// throttled error codes are reported as HTTP 429 regardless of the status Cognito used.
var throttled = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"ThrottlingException":      true,
}

// mapError converts Cognito service errors into *authkit.APIError. Transport
// failures are wrapped so network classification still sees them.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr smithy.APIError
	if !errors.As(err, &svcErr) {
		return fmt.Errorf("authkit/cognito: %s: %w", op, err)
	}

	out := &authkit.APIError{
		Code:    svcErr.ErrorCode(),
		Message: svcErr.ErrorMessage(),
		Err:     err,
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		out.Status = respErr.HTTPStatusCode()
	}
	if throttled[out.Code] {
		out.Status = http.StatusTooManyRequests
	}
	return out
}
