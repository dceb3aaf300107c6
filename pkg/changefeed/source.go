package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/unipress/newsdesk/pkg/logger"
)

// Source opens live subscriptions to row mutations of a single table.
type Source interface {
	// Subscribe opens a subscription matching f. The subscription ends when
	// ctx is done or Close is called. No events are replayed.
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

// Subscription is a handle on an open feed. Events are delivered in feed
// order; the channel is closed once the subscription ends.
type Subscription interface {
	Events() <-chan Event
	// Close releases the underlying feed resources and waits for them to be
	// released. Idempotent.
	Close() error
	// Err reports why the subscription ended on its own, or nil.
	Err() error
}

// Publisher pushes events onto a feed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type options struct {
	logger        *slog.Logger
	bufferSize    int
	channelPrefix string
}

// Option configures a Source or Publisher.
type Option func(*options)

// WithLogger sets the logger used for dropped or malformed payloads.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBufferSize sets the per-subscription event buffer.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithChannelPrefix overrides the notification channel prefix.
func WithChannelPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.channelPrefix = prefix
		}
	}
}

func newOptions(prefix string, opts []Option) options {
	o := options{
		logger:        slog.Default(),
		bufferSize:    64,
		channelPrefix: prefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stream runs pump in its own goroutine and exposes its output as a
// Subscription. cleanup runs on the pump goroutine before Events is closed.
type stream struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

type pumpFunc func(ctx context.Context, emit func(Event) bool) error

func startStream(ctx context.Context, buffer int, pump pumpFunc, cleanup func()) *stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		events: make(chan Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	emit := func(e Event) bool {
		select {
		case s.events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		defer func() {
			if cleanup != nil {
				cleanup()
			}
		}()

		if err := pump(ctx, emit); err != nil && ctx.Err() == nil {
			s.err = err
		}
	}()

	return s
}

// payloadFunc blocks until the next raw payload arrives.
type payloadFunc func(ctx context.Context) ([]byte, error)

// decodePump decodes payloads from next and emits those matching f.
// Malformed payloads are logged and skipped.
func decodePump(f Filter, log *slog.Logger, next payloadFunc) pumpFunc {
	return func(ctx context.Context, emit func(Event) bool) error {
		for {
			payload, err := next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			e, err := Decode(payload)
			if err != nil {
				log.WarnContext(ctx, "skipping malformed payload", logger.Error(err))
				continue
			}
			if !f.Match(e) {
				continue
			}
			if !emit(e) {
				return nil
			}
		}
	}
}

func (s *stream) Events() <-chan Event { return s.events }

func (s *stream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
