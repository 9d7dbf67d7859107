// Package testutil provides test utilities for structured logging.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// Record is a captured log entry.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Recorder captures log records for assertions. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	attrs   []slog.Attr
	shared  *Recorder
}

// NewRecordingLogger returns a logger whose records are captured by the
// returned Recorder and echoed to t.Log().
func NewRecordingLogger(t testing.TB) (*slog.Logger, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	rec.shared = rec
	echo := NewTestLogger(t).Handler()
	return slog.New(fanout{rec, echo}), rec
}

// Records returns the captured records at or above level.
func (r *Recorder) Records(level slog.Level) []Record {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	var out []Record
	for _, rec := range r.shared.records {
		if rec.Level >= level {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, len(r.attrs)+rec.NumAttrs())
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	r.shared.records = append(r.shared.records, Record{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Recorder{attrs: append(append([]slog.Attr{}, r.attrs...), attrs...), shared: r.shared}
}

// WithGroup is not needed by the code under test; groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// fanout sends every record to both handlers.
type fanout struct {
	rec  *Recorder
	echo slog.Handler
}

func (f fanout) Enabled(context.Context, slog.Level) bool { return true }

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	if err := f.rec.Handle(ctx, rec.Clone()); err != nil {
		return err
	}
	return f.echo.Handle(ctx, rec)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanout{rec: f.rec.WithAttrs(attrs).(*Recorder), echo: f.echo.WithAttrs(attrs)}
}

func (f fanout) WithGroup(name string) slog.Handler {
	return fanout{rec: f.rec, echo: f.echo.WithGroup(name)}
}
