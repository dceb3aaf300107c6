package changefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/logger"
)

func waitClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "events channel not closed")
		}
	}
}

func TestDecodePump_SkipsMalformedAndFiltered(t *testing.T) {
	in := make(chan *redis.Message, 8)
	in <- &redis.Message{Payload: "not json"}
	in <- &redis.Message{Payload: `{"id":"d1","table":"reactions","op":"DELETE","old":{"entity_id":"p1"}}`}
	in <- &redis.Message{Payload: `{"id":"c1","table":"comments","op":"INSERT"}`}
	in <- &redis.Message{Payload: `{"id":"x1","table":"reactions","op":"TRUNCATE"}`}
	in <- &redis.Message{Payload: `{"id":"r1","table":"reactions","op":"insert","new":{"entity_id":"p1"}}`}

	f := Filter{Table: "reactions", Operations: []Operation{OpInsert}}
	var cleaned atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	sub := startStream(ctx, 4, decodePump(f, logger.Discard(), messagePayloads(in)), func() { cleaned.Add(1) })

	select {
	case e := <-sub.Events():
		assert.Equal(t, "r1", e.ID)
		assert.Equal(t, OpInsert, e.Operation)
		id, _ := e.Row().String("entity_id")
		assert.Equal(t, "p1", id)
	case <-time.After(time.Second):
		require.FailNow(t, "no event received")
	}
	assert.Equal(t, int32(0), cleaned.Load())

	cancel()
	waitClosed(t, sub.Events())
	require.NoError(t, sub.Close())

	assert.Equal(t, int32(1), cleaned.Load())
	assert.NoError(t, sub.Err())
}

func TestDecodePump_FeedEnds(t *testing.T) {
	in := make(chan *redis.Message)
	close(in)

	var cleaned atomic.Int32
	sub := startStream(context.Background(), 1,
		decodePump(Filter{Table: "comments"}, logger.Discard(), messagePayloads(in)),
		func() { cleaned.Add(1) })

	waitClosed(t, sub.Events())
	require.NoError(t, sub.Close())
	assert.ErrorIs(t, sub.Err(), ErrSourceClosed)
	assert.Equal(t, int32(1), cleaned.Load())
}

func TestDecodePump_CloseStopsBlockedWait(t *testing.T) {
	var cleaned atomic.Int32
	block := func(ctx context.Context) (*pgconn.Notification, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sub := startStream(context.Background(), 1,
		decodePump(Filter{Table: "comments"}, logger.Discard(), notificationPayloads(block)),
		func() { cleaned.Add(1) })

	require.NoError(t, sub.Close())
	waitClosed(t, sub.Events())
	assert.NoError(t, sub.Err(), "a cancelled wait is not a feed error")
	assert.Equal(t, int32(1), cleaned.Load())
}

func TestNotificationPayloads_ConnectionLost(t *testing.T) {
	lost := errors.New("conn lost")
	queue := []*pgconn.Notification{
		{Channel: "changefeed_comments", Payload: `{"id":"c1","table":"comments","op":"INSERT"}`},
	}
	wait := func(ctx context.Context) (*pgconn.Notification, error) {
		if len(queue) == 0 {
			return nil, lost
		}
		n := queue[0]
		queue = queue[1:]
		return n, nil
	}

	sub := startStream(context.Background(), 4,
		decodePump(Filter{Table: "comments"}, logger.Discard(), notificationPayloads(wait)), nil)

	var got []string
	for e := range sub.Events() {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"c1"}, got)
	require.NoError(t, sub.Close())
	assert.ErrorIs(t, sub.Err(), lost)
}
