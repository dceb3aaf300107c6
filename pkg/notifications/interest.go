package notifications

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/logger"
)

// InterestSet is an immutable set of entity IDs owned by the current user.
// The zero value is the empty set.
type InterestSet struct {
	ids map[string]struct{}
}

func NewInterestSet(ids ...string) InterestSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return InterestSet{ids: m}
}

func (s InterestSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s InterestSet) Len() int { return len(s.ids) }

func (s InterestSet) Empty() bool { return len(s.ids) == 0 }

// IDs returns the members in sorted order.
func (s InterestSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Equal reports whether both sets hold the same IDs.
func (s InterestSet) Equal(o InterestSet) bool {
	if len(s.ids) != len(o.ids) {
		return false
	}
	for id := range s.ids {
		if _, ok := o.ids[id]; !ok {
			return false
		}
	}
	return true
}

// InterestResolver computes a user's InterestSet from the directory.
type InterestResolver struct {
	dir directory.Directory
	log *slog.Logger
}

func NewInterestResolver(dir directory.Directory, log *slog.Logger) *InterestResolver {
	if log == nil {
		log = slog.Default()
	}
	return &InterestResolver{dir: dir, log: log}
}

// Resolve returns the IDs of content owned by userID. Any failure yields the
// empty set, which keeps every table inactive; the error is returned for
// inspection only.
func (r *InterestResolver) Resolve(ctx context.Context, userID string) (InterestSet, error) {
	if userID == "" {
		return InterestSet{}, nil
	}

	ids, err := r.dir.OwnedEntityIDs(ctx, userID)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		r.log.Log(ctx, level, "interest set unavailable", logger.UserID(userID), logger.Error(err))
		return InterestSet{}, err
	}

	set := NewInterestSet(ids...)
	r.log.DebugContext(ctx, "interest set resolved", logger.UserID(userID), logger.Count(set.Len()))
	return set, nil
}
