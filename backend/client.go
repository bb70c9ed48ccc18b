// Package backend is an HTTP/JSON client for the companion backend API that
// serves the account flows and federated sign-in.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
)

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Client implements authkit.BackendAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

// compile-time check
var _ authkit.BackendAPI = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithTokenSource sets the source of bearer tokens for authenticated requests.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "authkit-go",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UseTokenSource sets the bearer token source after construction. The session
// manager and the backend depend on each other, so the manager's token source is
// usually attached here once both exist.
func (c *Client) UseTokenSource(ts oauth2.TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) SmartSignUp(ctx context.Context, req authkit.SignUpRequest) (*authkit.BackendResult, error) {
	return c.post(ctx, authkit.PathSmartSignUp, req)
}

func (c *Client) ConfirmSignUp(ctx context.Context, email, code string) (*authkit.BackendResult, error) {
	return c.post(ctx, authkit.PathConfirmSignUp, map[string]string{"email": email, "code": code})
}

func (c *Client) ResendConfirmationCode(ctx context.Context, email string) (*authkit.BackendResult, error) {
	return c.post(ctx, authkit.PathResendCode, map[string]string{"email": email})
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*authkit.BackendResult, error) {
	return c.post(ctx, authkit.PathForgotPassword, map[string]string{"email": email})
}

func (c *Client) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) (*authkit.BackendResult, error) {
	return c.post(ctx, authkit.PathConfirmForgotPassword, map[string]string{
		"email":       email,
		"code":        code,
		"newPassword": newPassword,
	})
}

func (c *Client) post(ctx context.Context, path string, body any) (*authkit.BackendResult, error) {
	return c.Request(ctx, path, authkit.RequestOptions{Method: http.MethodPost, Body: body})
}

// Request performs a JSON call against path. Non-2xx answers are returned as
// *authkit.APIError carrying the status and the backend's message.
func (c *Client) Request(ctx context.Context, path string, opts authkit.RequestOptions) (*authkit.BackendResult, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		buf, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("authkit/backend: encode %s body: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("authkit/backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := audit.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	hc, err := c.client(opts.Authenticated)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authkit/backend: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("authkit/backend: read %s response: %w", path, err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, raw)
	}
	return decode(raw)
}

// client returns the HTTP client for a request, wrapping the transport with the
// bearer token source when the request is authenticated.
func (c *Client) client(authenticated bool) (*http.Client, error) {
	if !authenticated {
		return c.httpClient, nil
	}
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return nil, fmt.Errorf("authkit/backend: authenticated request without a token source: %w", authkit.ErrNoAuthenticatedUser)
	}

	hc := *c.httpClient
	hc.Transport = &oauth2.Transport{Source: ts, Base: c.httpClient.Transport}
	return &hc, nil
}

// decode reads the {success, message?, ...} envelope. Remaining fields and the
// fields of a nested "data" object land in Data. A body without a success field
// counts as successful.
func decode(raw []byte) (*authkit.BackendResult, error) {
	res := &authkit.BackendResult{Success: true, Data: map[string]any{}}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("authkit/backend: decode response: %w", err)
	}
	for k, v := range fields {
		switch k {
		case "success":
			if b, ok := v.(bool); ok {
				res.Success = b
			}
		case "message":
			res.Message, _ = v.(string)
		case "data":
			if nested, ok := v.(map[string]any); ok {
				for nk, nv := range nested {
					res.Data[nk] = nv
				}
				continue
			}
			res.Data[k] = v
		default:
			res.Data[k] = v
		}
	}
	return res, nil
}

func statusError(status int, raw []byte) *authkit.APIError {
	out := &authkit.APIError{Status: status}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(raw, &body) == nil {
		out.Code = body.Code
		out.Message = body.Message
		if out.Message == "" {
			out.Message = body.Error
		}
	} else if text := strings.TrimSpace(string(raw)); len(text) <= 200 {
		out.Message = text
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}
