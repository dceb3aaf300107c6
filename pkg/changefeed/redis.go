package changefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/unipress/newsdesk/pkg/logger"
)

// DefaultRedisPrefix namespaces change feed channels as "<prefix>:<table>".
const DefaultRedisPrefix = "changefeed"

func redisChannel(prefix, table string) string {
	return prefix + ":" + table
}

// RedisSource subscribes to change feed events relayed over Redis pub/sub.
// Redis pub/sub is fire-and-forget: events published while no subscriber is
// connected are lost, which matches the gap-tolerant feed contract.
type RedisSource struct {
	client redis.UniversalClient
	opts   options
}

var _ Source = (*RedisSource)(nil)

func NewRedisSource(client redis.UniversalClient, opts ...Option) *RedisSource {
	return &RedisSource{
		client: client,
		opts:   newOptions(DefaultRedisPrefix, opts),
	}
}

// Subscribe opens a pub/sub connection and waits for the server to confirm
// the subscription before returning.
func (s *RedisSource) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	channel := redisChannel(s.opts.channelPrefix, f.Table)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrListen, channel, err)
	}

	log := s.opts.logger.With(logger.Table(f.Table), logger.Component("changefeed.redis"))

	pump := decodePump(f, log, messagePayloads(ps.Channel(redis.WithChannelSize(s.opts.bufferSize))))

	cleanup := func() {
		if err := ps.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Warn("closing pub/sub failed", logger.Error(err))
		}
	}

	return startStream(ctx, s.opts.bufferSize, pump, cleanup), nil
}

func messagePayloads(in <-chan *redis.Message) payloadFunc {
	return func(ctx context.Context) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil, ErrSourceClosed
			}
			return []byte(msg.Payload), nil
		}
	}
}

// RedisPublisher publishes events to the channels RedisSource listens on.
type RedisPublisher struct {
	client redis.UniversalClient
	opts   options
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client redis.UniversalClient, opts ...Option) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		opts:   newOptions(DefaultRedisPrefix, opts),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, redisChannel(p.opts.channelPrefix, e.Table), payload).Err()
}
