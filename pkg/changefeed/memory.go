package changefeed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unipress/newsdesk/pkg/broadcast"
	"github.com/unipress/newsdesk/pkg/logger"
)

// MemorySource is an in-process feed. Publish fans events out to every
// matching subscription. It is used by tests and single-binary deployments
// where writes happen in the same process.
type MemorySource struct {
	opts options
	hub  *broadcast.MemoryBroadcaster[Event]
}

var (
	_ Source    = (*MemorySource)(nil)
	_ Publisher = (*MemorySource)(nil)
)

// NewMemorySource creates an empty in-process feed.
func NewMemorySource(opts ...Option) *MemorySource {
	o := newOptions("", opts)
	return &MemorySource{
		opts: o,
		hub:  broadcast.NewMemoryBroadcaster[Event](o.bufferSize),
	}
}

// Subscribe registers a subscription for f.
func (s *MemorySource) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := s.hub.SubscribeFunc(ctx, f.Match)
	pump := func(ctx context.Context, emit func(Event) bool) error {
		in := sub.Receive(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-in:
				if !ok {
					return ErrSourceClosed
				}
				if !emit(msg.Data) {
					return nil
				}
			}
		}
	}
	cleanup := func() {
		if n := sub.Dropped(); n > 0 {
			s.opts.logger.Warn("memory subscription dropped events",
				logger.Table(f.Table), logger.Count(int(n)))
		}
		_ = sub.Close()
	}

	return startStream(ctx, s.opts.bufferSize, pump, cleanup), nil
}

// Publish delivers e to matching subscriptions. Missing IDs and timestamps
// are filled in.
func (s *MemorySource) Publish(ctx context.Context, e Event) error {
	if e.Table == "" {
		return ErrEmptyTable
	}
	if e.Operation == "" {
		e.Operation = OpInsert
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	err := s.hub.Broadcast(ctx, broadcast.Message[Event]{Data: e})
	if errors.Is(err, broadcast.ErrClosed) {
		return ErrSourceClosed
	}
	return err
}

// Subscribers returns the number of open subscriptions.
func (s *MemorySource) Subscribers() int {
	return s.hub.Len()
}

// Close ends every subscription. Later Publish calls fail with
// ErrSourceClosed and later subscriptions end immediately.
func (s *MemorySource) Close() error {
	return s.hub.Close()
}
