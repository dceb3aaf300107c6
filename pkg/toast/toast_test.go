package toast_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/notifications"
	"github.com/unipress/newsdesk/pkg/ratelimiter"
	"github.com/unipress/newsdesk/pkg/toast"
)

type staticDirectory struct{}

func (staticDirectory) OwnedEntityIDs(_ context.Context, userID string) ([]string, error) {
	if userID == "U" {
		return []string{"art-1"}, nil
	}
	return nil, nil
}

func (staticDirectory) EntityTitle(context.Context, string) (string, error) {
	return "Go <Generics>", nil
}

func (staticDirectory) ActorDisplayName(context.Context, string) (string, error) {
	return "Alice", nil
}

func (staticDirectory) Preferences(context.Context, string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// noPrefsDirectory fails every preference lookup.
type noPrefsDirectory struct{ staticDirectory }

func (noPrefsDirectory) Preferences(context.Context, string) (map[string]bool, error) {
	return nil, errors.New("preferences unavailable")
}

func TestFragment(t *testing.T) {
	var buf bytes.Buffer
	err := toast.Fragment("toast-1", notifications.Toast{Message: `<b>"hi"</b>`, Duration: 5 * time.Second}).
		Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, `id="toast-1"`)
	assert.Contains(t, html, `data-duration="5000"`)
	assert.Contains(t, html, "&lt;b&gt;")
	assert.NotContains(t, html, "<b>")
}

func TestSSESink_Notify(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)

	sink := toast.NewSSESink(datastar.NewSSE(rec, req), toast.WithSelector("#alerts"))
	require.NoError(t, sink.Notify(context.Background(), "Alice bookmarked your content", 3*time.Second))

	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, "#alerts")
	assert.Contains(t, body, "append")
	assert.Contains(t, body, "Alice bookmarked your content")
	assert.Contains(t, body, `"durationMs":3000`)
}

type fixture struct {
	server   *httptest.Server
	hub      *notifications.Hub
	feed     *changefeed.MemorySource
	verifier *identity.Verifier
}

func newFixture(t *testing.T, opts ...toast.HandlerOption) *fixture {
	t.Helper()
	return newFixtureWith(t, staticDirectory{}, opts...)
}

func newFixtureWith(t *testing.T, dir directory.Directory, opts ...toast.HandlerOption) *fixture {
	t.Helper()

	feed := changefeed.NewMemorySource(changefeed.WithLogger(logger.Discard()))
	hub, err := notifications.NewHub(notifications.HubDeps{Source: feed, Directory: dir},
		notifications.WithHubLogger(logger.Discard()))
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(identity.Config{Secret: "test-secret"})
	require.NoError(t, err)

	server := httptest.NewServer(toast.Routes(hub, verifier, logger.Discard(), opts...))
	t.Cleanup(func() {
		server.Close()
		_ = hub.Close()
		_ = feed.Close()
	})

	return &fixture{server: server, hub: hub, feed: feed, verifier: verifier}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.verifier.Issue(userID, time.Minute)
	require.NoError(t, err)
	return token
}

func TestStream_DeliversToasts(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.server.URL+"/stream?access_token="+url.QueryEscape(f.token(t, "U")), nil)
	require.NoError(t, err)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		s, ok := f.hub.Session("U")
		return ok && s.Active() == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.feed.Publish(context.Background(), changefeed.Event{
		Table:  "reactions",
		NewRow: changefeed.Row{"entity_id": "art-1", "actor_id": "A", "type": "heart"},
	}))

	found := make(chan bool, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "Alice ❤️ loved “Go &lt;Generics&gt;”") {
				found <- true
				return
			}
		}
		found <- false
	}()

	select {
	case ok := <-found:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("toast not streamed")
	}

	cancel()
	require.Eventually(t, func() bool { return f.hub.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/stream", "/refresh"} {
		method := http.MethodGet
		if path != "/stream" {
			method = http.MethodPost
		}
		req, err := http.NewRequest(method, f.server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer not-a-token")

		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestControl_RequiresLiveSession(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/enabled?enabled=false", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "U"))

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestControl_TogglesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, detach, err := f.hub.Attach(ctx, identity.Identity{UserID: "U"})
	require.NoError(t, err)
	defer detach()

	session, ok := f.hub.Session("U")
	require.True(t, ok)
	require.Equal(t, 3, session.Active())

	post := func(path string) int {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.token(t, "U"))
		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("/enabled?enabled=maybe"))

	assert.Equal(t, http.StatusNoContent, post("/enabled?enabled=false"))
	assert.Zero(t, session.Active())
	assert.False(t, session.Enabled())

	assert.Equal(t, http.StatusNoContent, post("/enabled?enabled=true"))
	assert.Equal(t, 3, session.Active())

	assert.Equal(t, http.StatusNoContent, post("/refresh"))
}

func TestRefresh_IsRateLimited(t *testing.T) {
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	limiter, err := ratelimiter.New(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	f := newFixture(t, toast.WithRefreshLimit(limiter))

	_, detach, err := f.hub.Attach(context.Background(), identity.Identity{UserID: "U"})
	require.NoError(t, err)
	defer detach()

	refresh := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/refresh", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.token(t, "U"))
		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusNoContent, refresh().StatusCode)

	resp := refresh()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRefresh_LookupFailureStillSucceeds(t *testing.T) {
	f := newFixtureWith(t, noPrefsDirectory{})

	_, detach, err := f.hub.Attach(context.Background(), identity.Identity{UserID: "U"})
	require.NoError(t, err)
	defer detach()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/refresh", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "U"))
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	session, ok := f.hub.Session("U")
	require.True(t, ok)
	assert.Equal(t, 3, session.Active())
	assert.True(t, notifications.WithDefault(session.Preferences(), notifications.CategoryReaction, true))
}
