package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// New returns a logger configured with a text handler writing to w.
// A nil writer falls back to STDERR so STDOUT stays free for reports.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug, info, warn and error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}

type ctxKey struct{}

// NewContext returns a copy of ctx with the logger stored.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves a logger from ctx or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Output is a log destination that can be pointed elsewhere while a
// terminal UI owns the screen.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutput returns an Output writing to w.
func NewOutput(w io.Writer) *Output { return &Output{w: w} }

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

// Redirect sends further writes to w until restore is called.
func (o *Output) Redirect(w io.Writer) (restore func()) {
	o.mu.Lock()
	prev := o.w
	o.w = w
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		o.w = prev
		o.mu.Unlock()
	}
}

type outputKey struct{}

// WithOutput returns a copy of ctx carrying the logger's Output.
func WithOutput(ctx context.Context, o *Output) context.Context {
	return context.WithValue(ctx, outputKey{}, o)
}

// OutputFromContext returns the Output stored by WithOutput.
func OutputFromContext(ctx context.Context) (*Output, bool) {
	o, ok := ctx.Value(outputKey{}).(*Output)
	return o, ok
}
