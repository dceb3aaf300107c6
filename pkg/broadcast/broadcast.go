package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel messages are delivered on. It is closed
	// when the subscriber or the broadcaster is closed.
	Receive(ctx context.Context) <-chan Message[T]

	// Close releases the subscription. Idempotent.
	Close() error

	// Dropped returns how many messages were discarded because the buffer
	// was full.
	Dropped() uint64
}

// Broadcaster sends messages to multiple subscribers. Implementations must
// never block on a slow consumer.
type Broadcaster[T any] interface {
	// Subscribe creates a subscriber receiving every message. The
	// subscription ends when ctx is done or Close is called.
	Subscribe(ctx context.Context) Subscriber[T]

	// SubscribeFunc is like Subscribe but only delivers messages for which
	// accept returns true.
	SubscribeFunc(ctx context.Context, accept func(T) bool) Subscriber[T]

	// Broadcast sends msg to all matching subscribers.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

type subscriber[T any] struct {
	ch      chan Message[T]
	done    chan struct{}
	accept  func(T) bool
	onClose func(*subscriber[T])
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func newSubscriber[T any](bufferSize int, accept func(T) bool) *subscriber[T] {
	return &subscriber[T]{
		ch:     make(chan Message[T], bufferSize),
		done:   make(chan struct{}),
		accept: accept,
	}
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	close(s.ch)
	close(s.done)
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose(s)
	}
	return nil
}

func (s *subscriber[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// send delivers msg without blocking. Filtered messages count as delivered.
func (s *subscriber[T]) send(msg Message[T]) {
	if s.accept != nil && !s.accept(msg.Data) {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}
