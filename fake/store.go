package fake

import (
	"context"
	"maps"
	"sync"

	authkit "github.com/chimerakang/authkit-go"
)

// Store is an in-memory authkit.SecureTokenStore that can be told to drop writes
// and hide reads, as a failing keychain would.
type Store struct {
	mu         sync.Mutex
	values     map[string]string
	dropSets   int
	failReads  bool
	sets, gets int
}

// compile-time check
var _ authkit.SecureTokenStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// DropNextSets silently discards the next n writes.
func (s *Store) DropNextSets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropSets = n
}

// FailReads makes every Get report absence while fail is true.
func (s *Store) FailReads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = fail
}

// Values returns a snapshot of the stored values.
func (s *Store) Values() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// SetCalls returns the number of Set calls, dropped ones included.
func (s *Store) SetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// GetCalls returns the number of Get calls.
func (s *Store) GetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *Store) Get(_ context.Context, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	if s.failReads {
		return ""
	}
	return s.values[key]
}

func (s *Store) Set(_ context.Context, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets++
	if s.dropSets > 0 {
		s.dropSets--
		return
	}
	s.values[key] = value
}

func (s *Store) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
