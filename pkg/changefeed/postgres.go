package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unipress/newsdesk/pkg/logger"
)

// DefaultPostgresPrefix is prepended to the table name to form the LISTEN
// channel, matching the newsdesk_changefeed_notify() trigger.
const DefaultPostgresPrefix = "changefeed_"

// PostgresSource subscribes to LISTEN/NOTIFY channels fed by the change feed
// trigger. Each subscription holds one pooled connection for its lifetime.
type PostgresSource struct {
	pool *pgxpool.Pool
	opts options
}

var _ Source = (*PostgresSource)(nil)

func NewPostgresSource(pool *pgxpool.Pool, opts ...Option) *PostgresSource {
	return &PostgresSource{
		pool: pool,
		opts: newOptions(DefaultPostgresPrefix, opts),
	}
}

// Subscribe acquires a connection and issues LISTEN for the filter's table.
func (s *PostgresSource) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Join(ErrListen, err)
	}

	channel := pgx.Identifier{s.opts.channelPrefix + f.Table}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %s: %w", ErrListen, channel, err)
	}

	log := s.opts.logger.With(logger.Table(f.Table), logger.Component("changefeed.postgres"))

	wait := func(ctx context.Context) (*pgconn.Notification, error) {
		return conn.Conn().WaitForNotification(ctx)
	}
	pump := decodePump(f, log, notificationPayloads(wait))

	cleanup := func() {
		// A cancelled wait may leave the connection closed; the pool
		// discards closed connections on release.
		if !conn.Conn().IsClosed() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, "UNLISTEN "+channel); err != nil {
				log.Warn("unlisten failed, closing connection", logger.Error(err))
				_ = conn.Conn().Close(ctx)
			}
		}
		conn.Release()
	}

	return startStream(ctx, s.opts.bufferSize, pump, cleanup), nil
}

// Publish sends e on the table's channel with pg_notify, for producers
// that write through the notifier rather than through the trigger.
func (s *PostgresSource) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", s.opts.channelPrefix+e.Table, string(payload))
	return err
}

func notificationPayloads(wait func(context.Context) (*pgconn.Notification, error)) payloadFunc {
	return func(ctx context.Context) ([]byte, error) {
		n, err := wait(ctx)
		if err != nil {
			return nil, err
		}
		return []byte(n.Payload), nil
	}
}
