package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores values in Redis under a key prefix, optionally sealed.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	sealer *Sealer
}

// RedisOption configures the Redis backend.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Default "authkit:".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL expires stored values after ttl. Zero keeps them indefinitely.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithSealer encrypts values before they leave the process.
func WithSealer(s *Sealer) RedisOption {
	return func(r *Redis) { r.sealer = s }
}

// NewRedis creates a Redis backend over client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "authkit:"}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("authkit/store: redis get: %w", err)
	}
	return r.sealer.open(key, v)
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	v, err := r.sealer.seal(key, value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, v, r.ttl).Err(); err != nil {
		return fmt.Errorf("authkit/store: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("authkit/store: redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
