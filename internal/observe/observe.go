// Package observe defines the diagnostics seam between request handling and
// the process logger. Handlers emit named events with structured fields; the
// concrete sink decides how they are written.
package observe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Fields carries the structured context of an event.
type Fields map[string]any

// Observer receives diagnostic events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Log(ctx context.Context, level zerolog.Level, event string, fields Fields)
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the given request ID. Events logged
// with that context are tagged with it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logger writes events through a zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger wraps a zerolog logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Log implements Observer.
func (l *Logger) Log(ctx context.Context, level zerolog.Level, event string, fields Fields) {
	e := l.logger.WithLevel(level)
	if !e.Enabled() {
		return
	}
	if id := RequestID(ctx); id != "" {
		e = e.Str("request_id", id)
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Str("event", event).Msg(event)
}

type nop struct{}

func (nop) Log(context.Context, zerolog.Level, string, Fields) {}

// Nop returns an Observer that discards every event.
func Nop() Observer { return nop{} }

// Entry is one event captured by a Recorder.
type Entry struct {
	Level     zerolog.Level
	Event     string
	RequestID string
	Fields    Fields
}

// Recorder keeps every event in memory. It is meant for tests that assert on
// emitted diagnostics.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log implements Observer.
func (r *Recorder) Log(ctx context.Context, level zerolog.Level, event string, fields Fields) {
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Level:     level,
		Event:     event,
		RequestID: RequestID(ctx),
		Fields:    copied,
	})
}

// Entries returns a snapshot of the recorded events in emission order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the recorded events with the given name.
func (r *Recorder) Find(event string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
