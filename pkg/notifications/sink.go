package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/unipress/newsdesk/pkg/logger"
)

// DefaultToastDuration is how long a notification stays on screen unless
// configured otherwise.
const DefaultToastDuration = 5 * time.Second

// Sink shows a rendered notification to the user for d. The recipient is
// available from ctx through identity.FromContext.
type Sink interface {
	Notify(ctx context.Context, message string, d time.Duration) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, message string, d time.Duration) error

func (f SinkFunc) Notify(ctx context.Context, message string, d time.Duration) error {
	return f(ctx, message, d)
}

// MultiSink fans a notification out to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// MultiSinkOption configures a MultiSink.
type MultiSinkOption func(*MultiSink)

// WithMultiSinkLogger sets the logger for the MultiSink.
func WithMultiSinkLogger(logger *slog.Logger) MultiSinkOption {
	return func(m *MultiSink) {
		m.logger = logger
	}
}

func NewMultiSink(sinks []Sink, opts ...MultiSinkOption) *MultiSink {
	m := &MultiSink{
		sinks:  sinks,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Notify is best effort: a failing sink is logged and the rest still run.
func (m *MultiSink) Notify(ctx context.Context, message string, d time.Duration) error {
	for i, s := range m.sinks {
		if err := s.Notify(ctx, message, d); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "sink failed",
				slog.Int("sink_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Notify(context.Context, string, time.Duration) error {
	return nil
}
