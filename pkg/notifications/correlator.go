package notifications

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/unipress/newsdesk/pkg/async"
	"github.com/unipress/newsdesk/pkg/cache"
	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

// Correlator turns a change event into a Notification for one user, or
// drops it. It is safe for concurrent use.
type Correlator struct {
	dir   directory.Directory
	log   *slog.Logger
	dedup *cache.LRUCache[string, struct{}]
}

// CorrelatorOption configures a Correlator.
type CorrelatorOption func(*Correlator)

// WithCorrelatorLogger sets the logger.
func WithCorrelatorLogger(l *slog.Logger) CorrelatorOption {
	return func(c *Correlator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDeduplication drops events whose ID was already correlated, remembering
// the last size IDs. Disabled by default: a redelivered event produces a
// second notification.
func WithDeduplication(size int) CorrelatorOption {
	return func(c *Correlator) {
		if size > 0 {
			c.dedup = cache.NewLRUCache[string, struct{}](size)
		}
	}
}

func NewCorrelator(dir directory.Directory, opts ...CorrelatorOption) *Correlator {
	c := &Correlator{dir: dir, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var errNoActor = errors.New("event has no actor")

// Correlate filters e for who against interest, the snapshot the
// subscription was opened with, then enriches it. The event is dropped when
// its entity is not in interest or when who is the actor. Title and actor
// lookups run concurrently as tasks of scope and fall back to placeholders
// on failure. Waiting on them stops when ctx is done; once scope is closed
// they fail fast.
func (c *Correlator) Correlate(ctx context.Context, scope *async.Scope, who identity.Identity, interest InterestSet, t Table, e changefeed.Event) (Notification, bool) {
	if e.Table != t.Name || (len(t.Operations) > 0 && !slices.Contains(t.Operations, e.Operation)) {
		return Notification{}, false
	}

	row := e.Row()
	entityID, ok := row.String(t.EntityColumn)
	if !ok || !interest.Has(entityID) {
		return Notification{}, false
	}

	actorID, _ := row.String(t.ActorColumn)
	if actorID != "" && actorID == who.UserID {
		return Notification{}, false
	}

	if c.dedup != nil && e.ID != "" && !c.dedup.PutIfAbsent(e.ID, struct{}{}) {
		c.log.Debug("duplicate event dropped", logger.Table(t.Name), logger.EventID(e.ID))
		return Notification{}, false
	}

	lookup := func(fetch func(context.Context, string) (string, error)) func(context.Context, string) (string, error) {
		return func(ctx context.Context, id string) (string, error) {
			return fetch(identity.WithIdentity(ctx, who), id)
		}
	}

	titleF := async.Go(scope, entityID, lookup(c.dir.EntityTitle))
	nameF := async.Resolved("", errNoActor)
	if actorID != "" {
		nameF = async.Go(scope, actorID, lookup(c.dir.ActorDisplayName))
	}

	title, err := titleF.AwaitContext(ctx)
	if err != nil {
		c.logFallback(ctx, "entity title unavailable", t, logger.EntityID(entityID), err)
		title = ""
	}
	name, err := nameF.AwaitContext(ctx)
	if err != nil {
		if actorID != "" {
			c.logFallback(ctx, "actor name unavailable", t, logger.ActorID(actorID), err)
		}
		name = ""
	}

	n := Notification{
		ID:               uuid.NewString(),
		UserID:           who.UserID,
		Category:         t.Category,
		Table:            t.Name,
		EventID:          e.ID,
		EntityID:         entityID,
		ActorID:          actorID,
		EntityTitle:      title,
		ActorDisplayName: name,
		CreatedAt:        e.Timestamp,
	}
	if t.ReactionColumn != "" {
		n.Reaction, _ = row.String(t.ReactionColumn)
	}
	if t.PreviewColumn != "" {
		n.Preview, _ = row.String(t.PreviewColumn)
	}
	return n, true
}

func (c *Correlator) logFallback(ctx context.Context, msg string, t Table, id slog.Attr, err error) {
	level := slog.LevelWarn
	if errors.Is(err, async.ErrScopeClosed) || errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	c.log.LogAttrs(ctx, level, msg, logger.Table(t.Name), id, logger.Error(err))
}
