package notifications

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/logger"
)

// PreferenceMatrix is an immutable snapshot of a user's per-category flags.
// The zero value holds no flags, so every category resolves to its default.
type PreferenceMatrix struct {
	flags map[Category]bool
}

// NewPreferenceMatrix copies flags into a new snapshot.
func NewPreferenceMatrix(flags map[string]bool) PreferenceMatrix {
	m := make(map[Category]bool, len(flags))
	for k, v := range flags {
		m[Category(k)] = v
	}
	return PreferenceMatrix{flags: m}
}

// Lookup returns the stored flag and whether one was stored.
func (m PreferenceMatrix) Lookup(c Category) (enabled, ok bool) {
	enabled, ok = m.flags[c]
	return enabled, ok
}

// Len returns the number of stored flags.
func (m PreferenceMatrix) Len() int {
	return len(m.flags)
}

// Flags returns a copy of the stored flags.
func (m PreferenceMatrix) Flags() map[Category]bool {
	return maps.Clone(m.flags)
}

// WithDefault resolves c against m, returning def when the user never set it.
// Users are opted in until they opt out, so callers pass true.
func WithDefault(m PreferenceMatrix, c Category, def bool) bool {
	if enabled, ok := m.Lookup(c); ok {
		return enabled
	}
	return def
}

// PreferenceStore holds the current user's PreferenceMatrix. Loads replace the
// snapshot atomically; readers never see a partial matrix.
type PreferenceStore struct {
	dir     directory.Directory
	log     *slog.Logger
	current atomic.Pointer[PreferenceMatrix]

	mu     sync.Mutex // serialises loads
	userID string
}

func NewPreferenceStore(dir directory.Directory, log *slog.Logger) *PreferenceStore {
	if log == nil {
		log = slog.Default()
	}
	s := &PreferenceStore{dir: dir, log: log}
	s.current.Store(&PreferenceMatrix{})
	return s
}

// Load fetches userID's preferences and swaps them in. On failure the store
// holds an empty matrix, so every category resolves to enabled, and the
// error is returned for inspection only. A failed load is not retried;
// Refresh issues a new one.
func (s *PreferenceStore) Load(ctx context.Context, userID string) (PreferenceMatrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = userID
	if userID == "" {
		s.current.Store(&PreferenceMatrix{})
		return PreferenceMatrix{}, nil
	}

	flags, err := s.dir.Preferences(ctx, userID)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		msg := "preferences unavailable, using defaults"
		if errors.Is(err, directory.ErrAuthExpired) {
			msg = "preferences rejected token, using defaults"
		}
		s.log.Log(ctx, level, msg, logger.UserID(userID), logger.Error(err))

		empty := PreferenceMatrix{}
		s.current.Store(&empty)
		return empty, err
	}

	m := NewPreferenceMatrix(flags)
	s.current.Store(&m)
	return m, nil
}

// Refresh reloads the preferences of the last loaded user.
func (s *PreferenceStore) Refresh(ctx context.Context) (PreferenceMatrix, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	return s.Load(ctx, userID)
}

// Matrix returns the current snapshot.
func (s *PreferenceStore) Matrix() PreferenceMatrix {
	return *s.current.Load()
}

// Allow reports whether notifications of category c may be shown.
func (s *PreferenceStore) Allow(c Category) bool {
	return WithDefault(s.Matrix(), c, true)
}
