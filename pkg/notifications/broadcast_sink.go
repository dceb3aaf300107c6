package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unipress/newsdesk/pkg/broadcast"
	"github.com/unipress/newsdesk/pkg/cache"
	"github.com/unipress/newsdesk/pkg/logger"
)

// Toast is one rendered notification as handed to a transport.
type Toast struct {
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// BroadcastSink fans toasts out to every transport subscribed for a user,
// such as several open tabs of the same account.
type BroadcastSink struct {
	users           *cache.LRUCache[string, *broadcast.MemoryBroadcaster[Toast]]
	bufferSize      int
	maxBroadcasters int
	logger          *slog.Logger
	mu              sync.Mutex
}

// BroadcastSinkOption configures a BroadcastSink.
type BroadcastSinkOption func(*BroadcastSink)

// WithBroadcastLogger sets the logger for the BroadcastSink.
func WithBroadcastLogger(logger *slog.Logger) BroadcastSinkOption {
	return func(b *BroadcastSink) {
		b.logger = logger
	}
}

// WithMaxBroadcasters caps the number of users with a live broadcaster.
// Past the cap the least recently used one is closed, which ends its
// subscribers' streams. Default is 10,000.
func WithMaxBroadcasters(limit int) BroadcastSinkOption {
	return func(b *BroadcastSink) {
		if limit > 0 {
			b.maxBroadcasters = limit
		}
	}
}

func NewBroadcastSink(bufferSize int, opts ...BroadcastSinkOption) *BroadcastSink {
	b := &BroadcastSink{
		bufferSize:      bufferSize,
		maxBroadcasters: 10000,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.users = cache.NewLRUCache[string, *broadcast.MemoryBroadcaster[Toast]](b.maxBroadcasters)
	b.users.SetEvictCallback(func(userID string, br *broadcast.MemoryBroadcaster[Toast]) {
		if err := br.Close(); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "failed to close evicted broadcaster",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	})

	return b
}

func (b *BroadcastSink) broadcaster(userID string) *broadcast.MemoryBroadcaster[Toast] {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, ok := b.users.Get(userID)
	if !ok {
		br = broadcast.NewMemoryBroadcaster[Toast](b.bufferSize)
		b.users.Put(userID, br)
	}
	return br
}

// For returns a Sink that delivers to userID's subscribers. Toasts for a
// user nobody subscribed for are dropped.
func (b *BroadcastSink) For(userID string) Sink {
	return SinkFunc(func(ctx context.Context, message string, d time.Duration) error {
		b.mu.Lock()
		br, ok := b.users.Get(userID)
		b.mu.Unlock()
		if !ok {
			return nil
		}
		return br.Broadcast(ctx, broadcast.Message[Toast]{
			Data: Toast{Message: message, Duration: d, At: time.Now()},
		})
	})
}

// Subscribe returns a subscriber for userID's toasts. It is closed when ctx
// is done.
func (b *BroadcastSink) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[Toast] {
	return b.broadcaster(userID).Subscribe(ctx)
}

// Remove closes userID's broadcaster, ending its subscriptions.
func (b *BroadcastSink) Remove(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.users.Remove(userID) // evict callback closes it
}

// Users returns the number of users with a live broadcaster.
func (b *BroadcastSink) Users() int {
	return b.users.Len()
}

// Close closes every broadcaster.
func (b *BroadcastSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.users.Clear()
	return nil
}
