package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

func newLimiter(t *testing.T, c *clock) (*ratelimiter.Limiter, *ratelimiter.MemoryStore) {
	t.Helper()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithClock(c.Now))
	t.Cleanup(store.Close)

	l, err := ratelimiter.New(store, cfg)
	require.NoError(t, err)
	return l, store
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	for name, c := range map[string]ratelimiter.Config{
		"capacity": {Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		"rate":     {Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		"interval": {Capacity: 1, RefillRate: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ratelimiter.New(store, c)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	_, err := ratelimiter.New(nil, cfg)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	t.Parallel()
	c := newClock()
	l, _ := newLimiter(t, c)
	ctx := context.Background()

	for i := range 3 {
		res, err := l.Allow(ctx, "u")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining, "a denied request does not drain the bucket further")
	assert.Equal(t, c.Now().Add(time.Minute), res.ResetAt)

	other, err := l.Allow(ctx, "v")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per key")

	c.Advance(90 * time.Second)
	res, err = l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// The half interval carried over completes the next token.
	c.Advance(30 * time.Second)
	res, err = l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_RefillIsCapped(t *testing.T) {
	t.Parallel()
	c := newClock()
	l, _ := newLimiter(t, c)
	ctx := context.Background()

	_, err := l.AllowN(ctx, "u", 3)
	require.NoError(t, err)

	c.Advance(24 * time.Hour)
	res, err := l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestLimiter_AllowNRejectsNonPositive(t *testing.T) {
	t.Parallel()
	l, _ := newLimiter(t, newClock())

	_, err := l.AllowN(context.Background(), "u", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()
	l, store := newLimiter(t, newClock())
	ctx := context.Background()

	_, err := l.AllowN(ctx, "u", 3)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	require.NoError(t, l.Reset(ctx, "u"))
	assert.Equal(t, 0, store.Len())

	res, err := l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStore_SweepsStaleBuckets(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(
		ratelimiter.WithCleanupInterval(10*time.Millisecond),
		ratelimiter.WithStaleAfter(time.Nanosecond),
	)
	t.Cleanup(store.Close)

	_, err := store.Take(context.Background(), "u", 1, cfg)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	c := newClock()
	l, _ := newLimiter(t, c)

	h := ratelimiter.Middleware(l, ratelimiter.ByUser("refresh"), logger.Discard())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	call := func(id identity.Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
		req = req.WithContext(identity.WithIdentity(req.Context(), id))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	u := identity.Identity{UserID: "U", AuthToken: "t"}
	for range 3 {
		rec := call(u)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := call(u)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	t.Run("anonymous requests are not limited", func(t *testing.T) {
		for range 5 {
			assert.Equal(t, http.StatusNoContent, call(identity.Identity{}).Code)
		}
	})
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, int, ratelimiter.Config) (ratelimiter.Result, error) {
	return ratelimiter.Result{}, ratelimiter.ErrStoreUnavailable
}

func (failingStore) Reset(context.Context, string) error { return nil }

func TestMiddleware_FailsOpen(t *testing.T) {
	t.Parallel()
	l, err := ratelimiter.New(failingStore{}, cfg)
	require.NoError(t, err)

	h := ratelimiter.Middleware(l, func(*http.Request) string { return "k" }, logger.Discard())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
