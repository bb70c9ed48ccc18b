package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_Plain(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	r := NewRedis(client, WithPrefix("app:"))

	_, err := r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Set(ctx, "k", "v"))
	raw, err := mr.Get("app:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, r.Delete(ctx, "k"))
	assert.False(t, mr.Exists("app:k"))
}

func TestRedis_SealedWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	sealer, err := NewSealer("pw", "")
	require.NoError(t, err)
	r := NewRedis(client, WithSealer(sealer), WithTTL(time.Minute))

	require.NoError(t, r.Set(ctx, "k", "secret"))
	raw, err := mr.Get("authkit:k")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", raw)
	assert.Equal(t, time.Minute, mr.TTL("authkit:k"))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)

	mr.FastForward(2 * time.Minute)
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	s := New(NewRedis(client))
	s.Set(ctx, "k", "v")
	assert.Equal(t, "v", s.Get(ctx, "k"))

	mr.Close()
	assert.Equal(t, "", s.Get(ctx, "k"))
	assert.NotPanics(t, func() { s.Set(ctx, "k", "w") })
}
