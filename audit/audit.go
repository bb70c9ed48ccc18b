// Package audit records session lifecycle decisions as structured events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names a lifecycle decision.
type Action string

const (
	ActionSignIn         Action = "sign_in"
	ActionRestore        Action = "restore"
	ActionRefresh        Action = "refresh"
	ActionSignOut        Action = "sign_out"
	ActionPasswordChange Action = "password_change"
	ActionFlowFallback   Action = "flow_fallback"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event is one audited decision.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Action    Action    `json:"action"`
	Method    string    `json:"method,omitempty"` // password, apple, google, backend, provider
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers from a single goroutine.
// A nil *Logger discards events.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	closed   sync.Once
	wg       sync.WaitGroup
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithStdoutHandler adds a handler that writes JSON events to stdout.
func WithStdoutHandler() Option {
	return WithWriter(os.Stdout)
}

// WithWriter adds a handler that writes one JSON event per line to w.
func WithWriter(w io.Writer) Option {
	return func(l *Logger) {
		enc := json.NewEncoder(w)
		l.AddHandler(func(e Event) {
			if err := enc.Encode(e); err != nil {
				fmt.Fprintf(os.Stderr, "audit: write event: %v\n", err)
			}
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates an audit logger with buffered async emission.
// bufferSize: event queue buffer size (default: 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		queue: make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler. Call before the first Log.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an event asynchronously, filling in ID and Timestamp when unset.
// Events logged after Close are dropped.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.queue <- event:
	case <-l.done:
	}
}

// Record logs action for ctx's request, deriving Result from err.
func (l *Logger) Record(ctx context.Context, action Action, userID, method string, err error) {
	if l == nil {
		return
	}
	e := Event{
		RequestID: RequestID(ctx),
		UserID:    userID,
		Action:    action,
		Method:    method,
		Result:    ResultSuccess,
	}
	if err != nil {
		e.Result = ResultFailure
		e.Error = err.Error()
	}
	l.Log(e)
}

func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			l.emit(event)
		case <-l.done:
			for {
				select {
				case event := <-l.queue:
					l.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(event Event) {
	for _, h := range l.handlers {
		h(event)
	}
}

// Close flushes pending events and stops the logger. It is safe to call more than once.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.closed.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}

// RequestID retrieves the request ID from context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// WithRequestID stores the request ID in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

type contextKey string

const contextKeyRequestID contextKey = "audit.request_id"
