package changefeed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
	failID string
}

func (p *recordingPublisher) Publish(_ context.Context, e changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.ID == p.failID {
		return errors.New("publish failed")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) snapshot() []changefeed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]changefeed.Event(nil), p.events...)
}

func TestRelay_Forwards(t *testing.T) {
	src := changefeed.NewMemorySource()
	defer src.Close()
	pub := &recordingPublisher{failID: "lost"}

	relay := changefeed.NewRelay(src, pub, []changefeed.Filter{
		{Table: "comments"},
		{Table: "reactions"},
	}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	// Failed publishes are skipped.
	require.NoError(t, src.Publish(ctx, changefeed.Event{ID: "lost", Table: "comments"}))
	require.NoError(t, src.Publish(ctx, changefeed.Event{ID: "c1", Table: "comments"}))
	require.NoError(t, src.Publish(ctx, changefeed.Event{ID: "b1", Table: "bookmarks"}))
	require.NoError(t, src.Publish(ctx, changefeed.Event{ID: "r1", Table: "reactions"}))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	ids := []string{}
	for _, e := range pub.snapshot() {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"c1", "r1"}, ids)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, src.Subscribers())
}

func TestRelay_SourceClosed(t *testing.T) {
	src := changefeed.NewMemorySource()
	relay := changefeed.NewRelay(src, &recordingPublisher{}, []changefeed.Filter{{Table: "comments"}}, logger.Discard())

	done := make(chan error, 1)
	go func() { done <- relay.Run(context.Background()) }()
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, src.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, changefeed.ErrSourceClosed)
	case <-time.After(time.Second):
		require.FailNow(t, "relay did not stop")
	}
}

func TestRelay_NoFilters(t *testing.T) {
	relay := changefeed.NewRelay(changefeed.NewMemorySource(), &recordingPublisher{}, nil, nil)
	assert.ErrorIs(t, relay.Run(context.Background()), changefeed.ErrEmptyTable)
}
