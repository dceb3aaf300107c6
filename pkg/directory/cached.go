package directory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unipress/newsdesk/pkg/cache"
	"github.com/unipress/newsdesk/pkg/identity"
)

// Cached memoizes titles and display names of another Directory for a
// bounded time. Concurrent misses for the same key by the same user share
// one lookup, so one user's rejected token never fails another's call.
// Failures are not cached. Owned entities and preferences always pass
// through: they define a session's state and must be fresh.
type Cached struct {
	next   Directory
	titles *cache.LRUCache[string, string]
	names  *cache.LRUCache[string, string]
	group  singleflight.Group
}

var _ Directory = (*Cached)(nil)

// NewCached wraps next. A non-positive size returns next unchanged.
func NewCached(next Directory, size int, ttl time.Duration) Directory {
	if size <= 0 {
		return next
	}
	return &Cached{
		next:   next,
		titles: cache.NewLRUCache(size, cache.WithTTL[string, string](ttl)),
		names:  cache.NewLRUCache(size, cache.WithTTL[string, string](ttl)),
	}
}

func (c *Cached) OwnedEntityIDs(ctx context.Context, userID string) ([]string, error) {
	return c.next.OwnedEntityIDs(ctx, userID)
}

func (c *Cached) Preferences(ctx context.Context, userID string) (map[string]bool, error) {
	return c.next.Preferences(ctx, userID)
}

func (c *Cached) EntityTitle(ctx context.Context, entityID string) (string, error) {
	return c.lookup(ctx, "title:", entityID, c.titles, c.next.EntityTitle)
}

func (c *Cached) ActorDisplayName(ctx context.Context, actorID string) (string, error) {
	return c.lookup(ctx, "name:", actorID, c.names, c.next.ActorDisplayName)
}

func (c *Cached) lookup(
	ctx context.Context,
	prefix, key string,
	store *cache.LRUCache[string, string],
	fetch func(context.Context, string) (string, error),
) (string, error) {
	if v, ok := store.Get(key); ok {
		return v, nil
	}

	// The shared call must outlive a single caller's cancellation while
	// still honouring its values (e.g. the identity used for auth).
	flight := prefix + key
	if id, ok := identity.FromContext(ctx); ok {
		flight = prefix + id.UserID + "/" + key
	}

	ch := c.group.DoChan(flight, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx), key)
		if err != nil {
			return "", err
		}
		store.Put(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
