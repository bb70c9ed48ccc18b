package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/fake"
	"github.com/chimerakang/authkit-go/internal/app"
	"github.com/chimerakang/authkit-go/store"
)

type harness struct {
	t      *testing.T
	config string
	idp    *fake.IdentityProvider
	mem    *store.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: cognito
cognito:
  region: us-east-1
  client_id: test-client
  client_secret: do-not-print
store:
  driver: memory
  passphrase: do-not-print-either
logging:
  level: error
`), 0o600))

	return &harness{
		t:      t,
		config: path,
		idp:    fake.NewIdentityProvider(fake.WithAccount("alice@example.com", "correct-horse")),
		mem:    store.NewMemory(),
	}
}

// run executes one CLI invocation against the shared provider and store.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd(app.WithIdentityProvider(h.idp), app.WithStoreBackend(h.mem))

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("correct-horse\n", "signin", "--email", "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as alice@example.com\n", out)

	out, err = h.run("", "whoami")
	require.NoError(t, err)
	var user authkit.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "alice@example.com", user.Email)

	out, err = h.run("", "token")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	out, err = h.run("", "refresh")
	require.NoError(t, err)
	assert.Equal(t, "Tokens refreshed.\n", out)

	out, err = h.run("", "signout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out alice@example.com\n", out)

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, authkit.ErrNoAuthenticatedUser)
	for _, key := range authkit.SessionKeys {
		_, err := h.mem.Get(context.Background(), key)
		assert.ErrorIs(t, err, store.ErrNotFound, key)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "signin", "--email", "alice@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign in failed")

	_, err = h.run("", "token")
	assert.ErrorIs(t, err, authkit.ErrNoAuthenticatedUser)
}

func TestPasswd(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "signin", "--email", "alice@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	out, err := h.run("", "passwd", "--old", "correct-horse", "--new", "battery-staple")
	require.NoError(t, err)
	assert.Equal(t, "Password changed.\n", out)

	acct, _ := h.idp.Account("alice@example.com")
	assert.Equal(t, "battery-staple", acct.Password)
}

func TestAccountFlowsWithoutBackend(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "signup", "--email", "New@Example.com", "--password", "pw-123456", "--name", "New")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered new@example.com (via provider)")
	assert.Contains(t, out, "authkit confirm")

	out, err = h.run("", "confirm", "--email", "new@example.com", "--code", fake.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, "Account confirmed.\n", out)

	out, err = h.run("", "forgot", "--email", "new@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "reset code")

	out, err = h.run("", "reset", "--email", "new@example.com", "--code", fake.ConfirmationCode, "--password", "pw-654321")
	require.NoError(t, err)
	assert.Equal(t, "Password reset.\n", out)

	_, err = h.run("", "signin", "--email", "new@example.com", "--password", "pw-654321")
	assert.NoError(t, err)
}

func TestConfigShow_OmitsSecrets(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: cognito")
	assert.Contains(t, out, "client_id: test-client")
	assert.NotContains(t, out, "do-not-print")
}

func TestVersion(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "authkit version"))
}
