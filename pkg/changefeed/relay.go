package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unipress/newsdesk/pkg/logger"
)

// Relay forwards events from a Source to a Publisher, one subscription per
// filter. It lets many notifier replicas share a single database listener
// by relaying into Redis.
type Relay struct {
	src     Source
	pub     Publisher
	filters []Filter
	log     *slog.Logger
}

// NewRelay builds a relay for the given filters.
func NewRelay(src Source, pub Publisher, filters []Filter, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{src: src, pub: pub, filters: filters, log: log}
}

// Run blocks until ctx is done or one of the subscriptions ends on its own.
// Publish failures are logged and the event is skipped.
func (r *Relay) Run(ctx context.Context) error {
	if len(r.filters) == 0 {
		return ErrEmptyTable
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range r.filters {
		sub, err := r.src.Subscribe(ctx, f)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("relay %s: %w", f.Table, err)
		}

		g.Go(func() error {
			defer sub.Close()
			return r.forward(ctx, f, sub)
		})
	}

	err := g.Wait()
	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) forward(ctx context.Context, f Filter, sub Subscription) error {
	log := r.log.With(logger.Table(f.Table), logger.Component("changefeed.relay"))
	log.InfoContext(ctx, "relay started")

	for e := range sub.Events() {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := r.pub.Publish(ctx, e); err != nil {
			log.WarnContext(ctx, "relay publish failed", logger.EventID(e.ID), logger.Error(err))
		}
	}

	if err := sub.Err(); err != nil {
		return fmt.Errorf("relay %s: %w", f.Table, err)
	}
	return ctx.Err()
}
