package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

type sessionFixture struct {
	session *Session
	dir     *fakeDirectory
	mem     *changefeed.MemorySource
	src     *flakySource
	sink    *recordingSink
}

func newSessionFixture(t *testing.T, dir *fakeDirectory, opts ...SessionOption) *sessionFixture {
	t.Helper()

	mem := changefeed.NewMemorySource(changefeed.WithLogger(logger.Discard()))
	f := &sessionFixture{
		dir:  dir,
		mem:  mem,
		src:  newFlakySource(mem),
		sink: newRecordingSink(),
	}

	s, err := NewSession(testUser, SessionDeps{
		Source:    f.src,
		Directory: dir,
		Sink:      f.sink,
	}, append([]SessionOption{WithSessionLogger(logger.Discard())}, opts...)...)
	require.NoError(t, err)
	f.session = s

	t.Cleanup(func() {
		s.Close()
		_ = mem.Close()
	})
	return f
}

// deliver runs e through the session pipeline synchronously.
func (f *sessionFixture) deliver(e changefeed.Event) {
	f.session.handle(context.Background(), tableByName(e.Table), f.session.Interest(), e)
}

func TestNewSession_MissingDependencies(t *testing.T) {
	_, err := NewSession(testUser, SessionDeps{})
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "change feed source")
	assert.Contains(t, err.Error(), "directory")
	assert.Contains(t, err.Error(), "sink")

	_, err = NewSession(testUser, SessionDeps{
		Source:    changefeed.NewMemorySource(),
		Directory: newFakeDirectory(),
		Sink:      NoOpSink{},
		Tables:    []Table{{Name: "reactions"}},
	})
	assert.ErrorIs(t, err, ErrInvalidTables)
}

func TestSession_Start(t *testing.T) {
	dir := newFakeDirectory()
	dir.prefs["U"] = map[string]bool{"bookmark": false}
	f := newSessionFixture(t, dir)

	require.NoError(t, f.session.Start(context.Background()))

	assert.Equal(t, 3, f.session.Active())
	assert.Equal(t, []string{"art-1"}, f.session.Interest().IDs())
	enabled, ok := f.session.Preferences().Lookup(CategoryBookmark)
	assert.True(t, ok)
	assert.False(t, enabled)
	assert.Equal(t, []string{"token-u", "token-u"}, dir.Tokens())
}

// User U owns art-1; actor A reacts with a heart.
func TestScenarioA_ReactionIsDelivered(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory(), WithToastDuration(3*time.Second))
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	require.NoError(t, f.mem.Publish(ctx, reactionEvent("art-1", "A", "heart")))

	call := f.sink.wait(t)
	assert.Equal(t, "Alice ❤️ loved “Go Generics”", call.Message)
	assert.Equal(t, 3*time.Second, call.Duration)
	assert.Equal(t, "U", call.UserID)
	assert.Len(t, f.sink.Calls(), 1)
}

func TestScenarioB_SelfActionIsSuppressed(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory())
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(reactionEvent("art-1", "U", "heart"))

	assert.Empty(t, f.sink.Calls())
}

func TestScenarioC_OtherContentIsIgnored(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory())
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(commentEvent("art-2", "A", "nice"))

	assert.Empty(t, f.sink.Calls())
	assert.Zero(t, f.dir.Calls("title"))
}

func TestScenarioD_DisabledCategoryIsDropped(t *testing.T) {
	dir := newFakeDirectory()
	dir.prefs["U"] = map[string]bool{"reaction": false}
	f := newSessionFixture(t, dir)
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(reactionEvent("art-1", "A", "heart"))
	assert.Empty(t, f.sink.Calls())

	// Nothing is queued while the gate is closed.
	dir.set(func(d *fakeDirectory) { d.prefs["U"] = map[string]bool{} })
	require.NoError(t, f.session.RefreshPreferences(context.Background()))
	assert.Empty(t, f.sink.Calls())

	f.deliver(reactionEvent("art-1", "A", "heart"))
	assert.Len(t, f.sink.Calls(), 1)
}

func TestScenarioE_ActorLookupFailureUsesFallback(t *testing.T) {
	dir := newFakeDirectory()
	dir.nameErr = errBackendDown
	f := newSessionFixture(t, dir)
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(reactionEvent("art-1", "A", "heart"))

	calls := f.sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Someone ❤️ loved “Go Generics”", calls[0].Message)
}

func TestSession_TitleLookupFailureStillDelivers(t *testing.T) {
	dir := newFakeDirectory()
	dir.titleErr = errBackendDown
	f := newSessionFixture(t, dir)
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(bookmarkEvent("art-1", "A"))

	calls := f.sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Alice bookmarked your content", calls[0].Message)
}

func TestSession_PreferenceFailureDefaultsToEnabled(t *testing.T) {
	dir := newFakeDirectory()
	dir.prefsErr = errBackendDown
	f := newSessionFixture(t, dir)
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(commentEvent("art-1", "A", "hello"))

	assert.Len(t, f.sink.Calls(), 1)
}

func TestSession_InterestFailureKeepsTablesInactive(t *testing.T) {
	dir := newFakeDirectory()
	dir.ownedErr = errBackendDown
	f := newSessionFixture(t, dir)

	require.NoError(t, f.session.Start(context.Background()))
	assert.Zero(t, f.session.Active())

	dir.set(func(d *fakeDirectory) { d.ownedErr = nil })
	require.NoError(t, f.session.RefreshInterest(context.Background()))
	assert.Equal(t, 3, f.session.Active())
}

func TestSession_SetEnabled(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory(), WithEnabled(false))
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx))
	assert.False(t, f.session.Enabled())
	assert.Zero(t, f.session.Active())

	require.NoError(t, f.session.SetEnabled(ctx, true))
	assert.Equal(t, 3, f.session.Active())

	require.NoError(t, f.session.SetEnabled(ctx, true))
	assert.Equal(t, 1, f.src.Opened("reactions"), "unchanged flag keeps handles")

	require.NoError(t, f.session.SetEnabled(ctx, false))
	assert.Zero(t, f.session.Active())
	assert.Zero(t, f.mem.Subscribers())
}

func TestSession_SetIdentity(t *testing.T) {
	dir := newFakeDirectory()
	dir.owned["V"] = []string{"art-9"}
	f := newSessionFixture(t, dir)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	t.Run("token refresh keeps state", func(t *testing.T) {
		require.NoError(t, f.session.SetIdentity(ctx, identity.Identity{UserID: "U", AuthToken: "token-u2"}))
		assert.Equal(t, "token-u2", f.session.Identity().AuthToken)
		assert.Equal(t, 1, f.src.Opened("reactions"))
		assert.Equal(t, 1, dir.Calls("owned"))
	})

	t.Run("different user reloads", func(t *testing.T) {
		require.NoError(t, f.session.SetIdentity(ctx, identity.Identity{UserID: "V", AuthToken: "token-v"}))
		assert.Equal(t, []string{"art-9"}, f.session.Interest().IDs())
		assert.Equal(t, 2, f.src.Opened("reactions"))
		assert.Equal(t, 3, f.session.Active())

		// U's content is no longer relevant and U is now a regular actor.
		f.deliver(reactionEvent("art-1", "A", "heart"))
		assert.Empty(t, f.sink.Calls())
		f.deliver(reactionEvent("art-9", "U", "like"))
		calls := f.sink.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Message, "Uma")
	})

	t.Run("sign out deactivates everything", func(t *testing.T) {
		require.NoError(t, f.session.SetIdentity(ctx, identity.Identity{}))
		assert.Zero(t, f.session.Active())
		assert.Zero(t, f.mem.Subscribers())
		assert.True(t, f.session.Interest().Empty())
	})
}

func TestSession_RefreshInterestPicksUpNewContent(t *testing.T) {
	dir := newFakeDirectory()
	f := newSessionFixture(t, dir)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	dir.set(func(d *fakeDirectory) { d.owned["U"] = []string{"art-1", "art-2"} })
	f.deliver(commentEvent("art-2", "A", "first"))
	assert.Empty(t, f.sink.Calls(), "new content is not covered before a refresh")

	require.NoError(t, f.session.RefreshInterest(ctx))
	assert.Equal(t, 2, f.src.Opened("comments"))

	require.NoError(t, f.mem.Publish(ctx, commentEvent("art-2", "A", "second")))
	assert.Equal(t, "Alice commented on “Other Post”: “second”", f.sink.wait(t).Message)
}

func TestSession_SinkErrorsAreNotFatal(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory())
	f.sink.err = errBackendDown
	require.NoError(t, f.session.Start(context.Background()))

	f.deliver(bookmarkEvent("art-1", "A"))
	f.deliver(bookmarkEvent("art-1", "A"))

	assert.Len(t, f.sink.Calls(), 2)
	assert.Equal(t, 3, f.session.Active())
}

func TestSession_OpenFailureIsReportedAndRecovered(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory())
	f.src.setFail("bookmarks", errBackendDown)

	err := f.session.Start(context.Background())
	require.ErrorIs(t, err, ErrSubscriptionOpen)
	assert.Equal(t, StateInactive, f.session.State("bookmarks"))
	assert.Equal(t, 2, f.session.Active())

	f.src.setFail("bookmarks", nil)
	require.NoError(t, f.session.SetEnabled(context.Background(), false))
	require.NoError(t, f.session.SetEnabled(context.Background(), true))
	assert.Equal(t, 3, f.session.Active())
}

func TestSession_StartGivesUpOnHangingOpen(t *testing.T) {
	f := newSessionFixture(t, newFakeDirectory())
	f.src.setHang("bookmarks", true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := f.session.Start(ctx)
	assert.Less(t, time.Since(started), time.Second)

	require.ErrorIs(t, err, ErrSubscriptionOpen)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var openErr *SubscriptionOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, StateInactive, f.session.State("bookmarks"))

	f.src.setHang("bookmarks", false)
	require.NoError(t, f.session.RefreshInterest(context.Background()))
	assert.Equal(t, 3, f.session.Active())
}

// After Close no handle is open and lookups that finish late never reach
// the sink.
func TestSession_CloseIsComplete(t *testing.T) {
	dir := newFakeDirectory()
	dir.titleGate = make(chan struct{})
	f := newSessionFixture(t, dir)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	require.NoError(t, f.mem.Publish(ctx, reactionEvent("art-1", "A", "heart")))
	require.Eventually(t, func() bool { return dir.Calls("title") == 1 }, 2*time.Second, 5*time.Millisecond)

	f.session.Close()
	close(dir.titleGate)

	assert.Zero(t, f.session.Active())
	assert.Zero(t, f.mem.Subscribers())
	for _, tbl := range DefaultTables() {
		assert.Equal(t, StateInactive, f.session.State(tbl.Name))
	}

	f.deliver(reactionEvent("art-1", "A", "heart"))
	assert.Empty(t, f.sink.Calls())

	assert.ErrorIs(t, f.session.Start(ctx), ErrSessionClosed)
	assert.ErrorIs(t, f.session.SetEnabled(ctx, false), ErrSessionClosed)
	assert.ErrorIs(t, f.session.SetIdentity(ctx, identity.Identity{UserID: "V"}), ErrSessionClosed)
	assert.ErrorIs(t, f.session.RefreshInterest(ctx), ErrSessionClosed)
	assert.ErrorIs(t, f.session.RefreshPreferences(ctx), ErrSessionClosed)
	f.session.Close()
}
