package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unipress/newsdesk/pkg/async"
	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

// SessionDeps are the collaborators a Session cannot work without. Tables
// defaults to DefaultTables.
type SessionDeps struct {
	Source    changefeed.Source
	Directory directory.Directory
	Sink      Sink
	Tables    []Table
}

func (d SessionDeps) validate() error {
	var errs []error
	if d.Source == nil {
		errs = append(errs, fmt.Errorf("%w: change feed source", ErrMissingDependency))
	}
	if d.Directory == nil {
		errs = append(errs, fmt.Errorf("%w: directory", ErrMissingDependency))
	}
	if d.Sink == nil {
		errs = append(errs, fmt.Errorf("%w: sink", ErrMissingDependency))
	}
	for _, t := range d.Tables {
		if err := t.Validate(); err != nil {
			errs = append(errs, errors.Join(ErrInvalidTables, err))
		}
	}
	return errors.Join(errs...)
}

type sessionOptions struct {
	duration time.Duration
	dedup    int
	enabled  bool
	log      *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

// WithToastDuration sets the display duration handed to the sink.
func WithToastDuration(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		if d > 0 {
			o.duration = d
		}
	}
}

// WithEventDeduplication drops redelivered events, remembering the last
// size event IDs.
func WithEventDeduplication(size int) SessionOption {
	return func(o *sessionOptions) {
		o.dedup = size
	}
}

// WithEnabled sets the initial value of the global enabled flag. Sessions
// start enabled.
func WithEnabled(enabled bool) SessionOption {
	return func(o *sessionOptions) {
		o.enabled = enabled
	}
}

// WithSessionLogger sets the logger used by the session and its parts.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Session is the notification engine for one signed-in user. It is created
// at sign-in, driven through its setters as inputs change and closed at
// sign-out. After Close returns no subscription is open and the sink is
// never called again.
type Session struct {
	tables   []Table
	sink     Sink
	duration time.Duration
	log      *slog.Logger

	scope      *async.Scope
	prefs      *PreferenceStore
	resolver   *InterestResolver
	correlator *Correlator
	manager    *SubscriptionManager

	who     atomic.Pointer[identity.Identity]
	enabled atomic.Bool

	mu       sync.Mutex // serialises lifecycle changes
	interest InterestSet
	closed   bool
}

// NewSession builds a session for id. Nothing is loaded or subscribed
// until Start.
func NewSession(id identity.Identity, deps SessionDeps, opts ...SessionOption) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	o := sessionOptions{
		duration: DefaultToastDuration,
		enabled:  true,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	tables := deps.Tables
	if len(tables) == 0 {
		tables = DefaultTables()
	}

	log := o.log.With(logger.Component("notifications"))
	s := &Session{
		tables:   tables,
		sink:     deps.Sink,
		duration: o.duration,
		log:      log,
		scope:    async.NewScope(context.Background()),
		prefs:    NewPreferenceStore(deps.Directory, log),
		resolver: NewInterestResolver(deps.Directory, log),
		correlator: NewCorrelator(deps.Directory,
			WithCorrelatorLogger(log),
			WithDeduplication(o.dedup),
		),
	}
	s.manager = NewSubscriptionManager(s.scope.Context(), deps.Source, s.handle, log)
	s.who.Store(&id)
	s.enabled.Store(o.enabled)

	return s, nil
}

// Start loads preferences and the interest set concurrently, then opens
// the subscriptions they call for. Lookup failures fall back to defaults
// and are only logged; the returned error is a context error, a closed
// session or the subscriptions that could not be opened.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.reload(ctx)
}

// reload must be called with s.mu held.
func (s *Session) reload(ctx context.Context) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return err
	}

	who := s.Identity()
	if who.Anonymous() {
		_, _ = s.prefs.Load(ctx, "")
		s.interest = InterestSet{}
		return s.reconcile(ctx)
	}

	var interest InterestSet
	g, gctx := errgroup.WithContext(identity.WithIdentity(ctx, who))
	g.Go(func() error {
		_, err := s.prefs.Load(gctx, who.UserID)
		return contextOnly(ctx, err)
	})
	g.Go(func() error {
		set, err := s.resolver.Resolve(gctx, who.UserID)
		interest = set
		return contextOnly(ctx, err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.interest = interest
	return s.reconcile(ctx)
}

// contextOnly keeps err only when ctx itself is done; lookup failures are
// recovered by the stores.
func contextOnly(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// bind derives a context that is also cancelled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.scope.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// reconcile must be called with s.mu held.
func (s *Session) reconcile(ctx context.Context) error {
	return s.manager.Reconcile(ctx, Desired{
		Tables:   s.tables,
		Interest: s.interest,
		Enabled:  s.enabled.Load() && !s.Identity().Anonymous(),
	})
}

// SetEnabled flips the global enabled flag. Disabling closes every
// subscription; enabling reopens them from the current interest set.
func (s *Session) SetEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.enabled.Swap(enabled) == enabled {
		return nil
	}
	s.log.InfoContext(ctx, "notifications toggled", slog.Bool("enabled", enabled))

	ctx, cancel := s.bind(ctx)
	defer cancel()
	return s.reconcile(ctx)
}

// Enabled reports the global enabled flag.
func (s *Session) Enabled() bool {
	return s.enabled.Load()
}

// SetIdentity applies an identity change. A new token for the same user is
// only stored. A different user invalidates everything: every subscription
// is closed before the new user's preferences and interest set are loaded.
// An anonymous identity leaves every table inactive.
func (s *Session) SetIdentity(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	prev := s.Identity()
	if prev.UserID == id.UserID {
		s.who.Store(&id)
		return nil
	}

	s.log.InfoContext(ctx, "session identity changed",
		slog.String("previous_user_id", prev.UserID),
		logger.UserID(id.UserID),
	)

	// Drain the previous user's handlers before they can see the new identity.
	if err := s.manager.Reconcile(ctx, Desired{}); err != nil {
		return err
	}
	s.interest = InterestSet{}
	s.who.Store(&id)

	return s.reload(ctx)
}

// Identity returns the current identity.
func (s *Session) Identity() identity.Identity {
	return *s.who.Load()
}

// RefreshPreferences reloads the preference matrix. The returned error is
// the lookup failure, if any; the store already fell back to defaults.
func (s *Session) RefreshPreferences(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()

	_, err := s.prefs.Refresh(identity.WithIdentity(ctx, s.Identity()))
	return err
}

// RefreshInterest re-resolves the interest set and reopens subscriptions
// when it changed. New content is only covered after a refresh.
func (s *Session) RefreshInterest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()

	who := s.Identity()
	set, err := s.resolver.Resolve(identity.WithIdentity(ctx, who), who.UserID)
	s.interest = set
	return errors.Join(err, s.reconcile(ctx))
}

// Interest returns the current interest set snapshot.
func (s *Session) Interest() InterestSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interest
}

// Preferences returns the current preference matrix snapshot.
func (s *Session) Preferences() PreferenceMatrix {
	return s.prefs.Matrix()
}

// Active returns the number of open subscriptions.
func (s *Session) Active() int {
	return s.manager.Active()
}

// State returns the subscription state of table.
func (s *Session) State(table string) SubscriptionState {
	return s.manager.State(table)
}

// Close tears the session down. In-flight lookups are cancelled and their
// results discarded, every subscription is closed and its consumer drained
// before Close returns. Safe to call more than once.
func (s *Session) Close() {
	// Cancel first so a lifecycle call holding s.mu aborts its lookups.
	s.scope.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.manager.Close()

	s.log.Info("session closed", logger.UserID(s.Identity().UserID))
}

// handle is the per-event pipeline: correlate, gate, deliver.
func (s *Session) handle(ctx context.Context, t Table, interest InterestSet, e changefeed.Event) {
	who := s.Identity()
	if who.Anonymous() {
		return
	}

	n, ok := s.correlator.Correlate(ctx, s.scope, who, interest, t, e)
	if !ok {
		return
	}

	if !s.prefs.Allow(n.Category) {
		s.log.DebugContext(ctx, "notification suppressed by preferences",
			logger.Category(string(n.Category)),
			logger.EventID(e.ID),
		)
		return
	}

	if ctx.Err() != nil {
		return
	}

	msg := n.Message()
	s.scope.Do(func(ctx context.Context) {
		// Sinks shared between users read the recipient from ctx.
		if err := s.sink.Notify(identity.WithIdentity(ctx, who), msg, s.duration); err != nil {
			s.log.LogAttrs(ctx, slog.LevelError, "sink failed",
				logger.Table(t.Name),
				logger.EventID(e.ID),
				logger.Error(err),
			)
		}
	})
}
