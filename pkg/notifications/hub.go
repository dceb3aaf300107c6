package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/unipress/newsdesk/pkg/broadcast"
	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

// HubDeps are shared by every session of a Hub. Sink, when set, receives
// every user's notifications in addition to the hub's subscribers.
type HubDeps struct {
	Source    changefeed.Source
	Directory directory.Directory
	Tables    []Table
	Sink      Sink
}

// Hub shares one Session per signed-in user between all of that user's
// connections. The session is started by the first Attach and closed when
// the last connection detaches.
type Hub struct {
	deps        HubDeps
	sessionOpts []SessionOption
	toasts      *BroadcastSink
	toastBuffer int
	maxSessions int
	log         *slog.Logger

	mu      sync.Mutex
	entries map[string]*hubEntry
	closed  bool
}

type hubEntry struct {
	session *Session
	refs    int
	ready   chan struct{}
	err     error
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSessionOptions applies opts to every session the hub creates.
func WithSessionOptions(opts ...SessionOption) HubOption {
	return func(h *Hub) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// WithMaxSessions caps the number of concurrent users. Default is 10,000.
func WithMaxSessions(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxSessions = n
		}
	}
}

// WithToastBuffer sets the per-subscriber toast buffer. Default is 16.
func WithToastBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.toastBuffer = n
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHub(deps HubDeps, opts ...HubOption) (*Hub, error) {
	if err := (SessionDeps{Source: deps.Source, Directory: deps.Directory, Sink: NoOpSink{}, Tables: deps.Tables}).validate(); err != nil {
		return nil, err
	}

	h := &Hub{
		deps:        deps,
		toastBuffer: 16,
		maxSessions: 10000,
		log:         slog.Default(),
		entries:     make(map[string]*hubEntry),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.toasts = NewBroadcastSink(h.toastBuffer, WithBroadcastLogger(h.log), WithMaxBroadcasters(h.maxSessions))
	h.sessionOpts = append([]SessionOption{WithSessionLogger(h.log)}, h.sessionOpts...)

	return h, nil
}

// Attach joins id's session, creating and starting it when this is the
// user's first connection. The returned subscriber yields the user's toasts
// until ctx is done or detach is called. detach must be called exactly when
// the connection ends; it is safe to call more than once.
func (h *Hub) Attach(ctx context.Context, id identity.Identity) (broadcast.Subscriber[Toast], func(), error) {
	if id.Anonymous() {
		return nil, nil, ErrAnonymous
	}

	e, created, err := h.acquire(id)
	if err != nil {
		return nil, nil, err
	}

	sub := h.toasts.Subscribe(ctx, id.UserID)
	detach := sync.OnceFunc(func() {
		_ = sub.Close()
		h.release(id.UserID, e)
	})

	if created {
		err = e.session.Start(ctx)
		if err != nil && !errors.Is(err, ErrSubscriptionOpen) {
			e.err = err
		}
		close(e.ready)
	} else {
		select {
		case <-e.ready:
		case <-ctx.Done():
			detach()
			return nil, nil, ctx.Err()
		}
		if e.err == nil {
			// Keeps the freshest token for lookups made on the user's behalf.
			_ = e.session.SetIdentity(ctx, id)
		}
	}

	if e.err != nil {
		detach()
		return nil, nil, e.err
	}

	h.log.DebugContext(ctx, "connection attached", logger.UserID(id.UserID))
	return sub, detach, nil
}

func (h *Hub) acquire(id identity.Identity) (*hubEntry, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false, ErrSessionClosed
	}

	if e, ok := h.entries[id.UserID]; ok {
		e.refs++
		return e, false, nil
	}

	if len(h.entries) >= h.maxSessions {
		return nil, false, ErrHubFull
	}

	sink := h.toasts.For(id.UserID)
	if h.deps.Sink != nil {
		sink = NewMultiSink([]Sink{sink, h.deps.Sink}, WithMultiSinkLogger(h.log))
	}

	session, err := NewSession(id, SessionDeps{
		Source:    h.deps.Source,
		Directory: h.deps.Directory,
		Sink:      sink,
		Tables:    h.deps.Tables,
	}, h.sessionOpts...)
	if err != nil {
		return nil, false, err
	}

	e := &hubEntry{session: session, refs: 1, ready: make(chan struct{})}
	h.entries[id.UserID] = e
	return e, true, nil
}

func (h *Hub) release(userID string, e *hubEntry) {
	h.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && h.entries[userID] == e {
		delete(h.entries, userID)
		// Departed users must not hold LRU slots that live users need.
		h.toasts.Remove(userID)
	}
	h.mu.Unlock()

	if last {
		e.session.Close()
		h.log.Debug("last connection detached", logger.UserID(userID))
	}
}

// Session returns userID's live session.
func (h *Hub) Session(userID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[userID]
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.session, true
}

// Sessions returns the number of live sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close closes every session and ends every subscriber stream. Later
// Attach calls fail with ErrSessionClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	entries := h.entries
	h.entries = make(map[string]*hubEntry)
	h.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
	return h.toasts.Close()
}
