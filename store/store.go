// Package store provides the SecureTokenStore implementation.
//
// Backends report failures as errors; Store adapts any Backend to the fail-soft
// contract of authkit.SecureTokenStore, where a failed read is "absent" and a
// failed write or delete is dropped. Backends: in-memory, AES-GCM sealed file,
// Redis and SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/metrics"
)

// ErrNotFound is returned by backends for keys that hold no value.
var ErrNotFound = errors.New("authkit/store: not found")

// Backend is the fallible persistence contract behind Store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store implements authkit.SecureTokenStore over a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// compile-time check
var _ authkit.SecureTokenStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger that receives absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics counts absorbed failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a fail-soft store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the value under key, or "" when absent or unreadable.
func (s *Store) Get(ctx context.Context, key string) (value string) {
	defer s.absorbPanic("get", key)

	v, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.fail("get", key, err)
		}
		return ""
	}
	return v
}

// Set stores value under key; failures are logged and dropped.
func (s *Store) Set(ctx context.Context, key, value string) {
	defer s.absorbPanic("set", key)

	if err := s.backend.Set(ctx, key, value); err != nil {
		s.fail("set", key, err)
	}
}

// Delete removes key; failures are logged and dropped.
func (s *Store) Delete(ctx context.Context, key string) {
	defer s.absorbPanic("delete", key)

	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.fail("delete", key, err)
	}
}

// Close releases the backend if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) fail(op, key string, err error) {
	s.metrics.RecordStorageFailure(op)
	s.logger.Warn("secure storage operation failed", "op", op, "key", key, "error", err)
}

func (s *Store) absorbPanic(op, key string) {
	if r := recover(); r != nil {
		s.fail(op, key, fmt.Errorf("panic: %v", r))
	}
}
