// Package events broadcasts authentication state changes to listeners.
package events

import (
	"io"
	"log/slog"
	"sync"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/metrics"
)

// Listener receives the current user after every state change, or nil on sign-out.
type Listener func(user *authkit.User)

type entry struct {
	id uint64
	fn Listener
}

// Bus is a synchronous fan-out of auth state changes.
// Listeners run in registration order; a panicking listener is logged and skipped.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	nextID    uint64
	listeners []entry
}

// Option configures the Bus.
type Option func(*Bus)

// WithLogger sets the logger for listener failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics counts listener panics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.listeners {
		if e.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Publish delivers user to the listeners registered when Publish was called.
// Listeners added or removed during delivery take effect on the next Publish.
func (b *Bus) Publish(user *authkit.User) {
	b.mu.Lock()
	snapshot := b.listeners
	b.mu.Unlock()

	for _, e := range snapshot {
		b.deliver(e, user)
	}
}

func (b *Bus) deliver(e entry, user *authkit.User) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordListenerPanic()
			b.logger.Error("auth listener panicked", "listener", e.id, "panic", r)
		}
	}()
	e.fn(user)
}
