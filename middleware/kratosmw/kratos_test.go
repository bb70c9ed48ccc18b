package kratosmw

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport"

	authkit "github.com/chimerakang/authkit-go"
)

// mockTransport implements transport.Transporter
type mockTransport struct {
	headers map[string]string
	op      string
}

func (m *mockTransport) Kind() transport.Kind             { return transport.KindHTTP }
func (m *mockTransport) Endpoint() string                 { return "mock://test" }
func (m *mockTransport) Operation() string                { return m.op }
func (m *mockTransport) RequestHeader() transport.Header  { return &mockHeader{headers: m.headers} }
func (m *mockTransport) ReplyHeader() transport.Header    { return &mockHeader{headers: make(map[string]string)} }

type mockHeader struct {
	headers map[string]string
}

func (h *mockHeader) Get(key string) string      { return h.headers[key] }
func (h *mockHeader) Set(key, value string)      { h.headers[key] = value }
func (h *mockHeader) Add(key, value string)      { h.headers[key] = value }
func (h *mockHeader) Values(key string) []string { return []string{h.headers[key]} }
func (h *mockHeader) Keys() []string {
	keys := make([]string, 0, len(h.headers))
	for k := range h.headers {
		keys = append(keys, k)
	}
	return keys
}

// stubProvider hands out tokens from a list, advancing on Refresh.
type stubProvider struct {
	tokens    []string
	idx       int
	err       error
	refreshes int
}

func (p *stubProvider) AccessToken(context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.tokens[p.idx], nil
}

func (p *stubProvider) Refresh(context.Context) bool {
	p.refreshes++
	if p.idx+1 >= len(p.tokens) {
		return false
	}
	p.idx++
	return true
}

func clientContext(op string) (context.Context, *mockTransport) {
	tr := &mockTransport{headers: make(map[string]string), op: op}
	return transport.NewClientContext(context.Background(), tr), tr
}

func TestClient_SetsBearer(t *testing.T) {
	ctx, tr := clientContext("/feed.v1.Feed/List")

	handler := Client(&stubProvider{tokens: []string{"at-1"}})(func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	reply, err := handler(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "ok" {
		t.Errorf("reply = %v", reply)
	}
	if got := tr.headers["Authorization"]; got != "Bearer at-1" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestClient_NoSession(t *testing.T) {
	ctx, _ := clientContext("/feed.v1.Feed/List")

	called := false
	handler := Client(&stubProvider{err: authkit.ErrNoAuthenticatedUser})(func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	})
	_, err := handler(ctx, nil)
	if !errors.IsUnauthorized(err) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if !stderrors.Is(err, authkit.ErrNoAuthenticatedUser) {
		t.Errorf("cause lost: %v", err)
	}
	if called {
		t.Error("request was sent without a token")
	}
}

func TestClient_Skips(t *testing.T) {
	tests := []struct {
		name string
		op   string
		mark bool
	}{
		{"excluded operation", "/auth.v1.Auth/SignUp", false},
		{"context marked", "/feed.v1.Feed/List", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, tr := clientContext(tt.op)
			if tt.mark {
				ctx = authkit.WithoutAuth(ctx)
			}
			mw := Client(&stubProvider{err: stderrors.New("must not be asked")},
				WithExcludedOperations("/auth.v1.Auth/SignUp"))

			_, err := mw(func(context.Context, any) (any, error) { return nil, nil })(ctx, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := tr.headers["Authorization"]; ok {
				t.Error("Authorization header set")
			}
		})
	}
}

func TestClient_NoTransport(t *testing.T) {
	handler := Client(&stubProvider{err: stderrors.New("must not be asked")})(func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if _, err := handler(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_RetryOnUnauthorized(t *testing.T) {
	ctx, tr := clientContext("/feed.v1.Feed/List")
	p := &stubProvider{tokens: []string{"stale", "fresh"}}

	var sent []string
	handler := Client(p, WithRetryOnUnauthorized())(func(context.Context, any) (any, error) {
		sent = append(sent, tr.headers["Authorization"])
		if tr.headers["Authorization"] == "Bearer stale" {
			return nil, errors.Unauthorized("UNAUTHORIZED", "token expired")
		}
		return "ok", nil
	})
	reply, err := handler(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "ok" || len(sent) != 2 || sent[1] != "Bearer fresh" || p.refreshes != 1 {
		t.Errorf("reply=%v sent=%v refreshes=%d", reply, sent, p.refreshes)
	}
}

func TestClient_RetryGivesUpWhenRefreshFails(t *testing.T) {
	ctx, _ := clientContext("/feed.v1.Feed/List")
	p := &stubProvider{tokens: []string{"stale"}}

	calls := 0
	handler := Client(p, WithRetryOnUnauthorized())(func(context.Context, any) (any, error) {
		calls++
		return nil, errors.Unauthorized("UNAUTHORIZED", "token expired")
	})
	_, err := handler(ctx, nil)
	if !errors.IsUnauthorized(err) || calls != 1 || p.refreshes != 1 {
		t.Errorf("err=%v calls=%d refreshes=%d", err, calls, p.refreshes)
	}
}
