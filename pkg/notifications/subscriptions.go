package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/statemachine"
)

// SubscriptionState is the lifecycle state of one tracked table.
type SubscriptionState string

const (
	StateInactive      SubscriptionState = "inactive"
	StateTransitioning SubscriptionState = "transitioning"
	StateActive        SubscriptionState = "active"
)

type subscriptionEvent string

const (
	evOpen   subscriptionEvent = "open"
	evOpened subscriptionEvent = "opened"
	evFailed subscriptionEvent = "failed"
	evClose  subscriptionEvent = "close"
	evClosed subscriptionEvent = "closed"
)

// EventHandler processes one event of an active subscription. interest is
// the snapshot the subscription was opened with; ctx is cancelled when the
// subscription is closed.
type EventHandler func(ctx context.Context, t Table, interest InterestSet, e changefeed.Event)

// Desired is the input of Reconcile.
type Desired struct {
	Tables   []Table
	Interest InterestSet
	Enabled  bool
}

// SubscriptionManager keeps at most one open subscription per tracked table
// and replaces it whenever its inputs change. Each open subscription has a
// consumer goroutine that hands events to the handler in feed order.
type SubscriptionManager struct {
	base    context.Context
	src     changefeed.Source
	handler EventHandler
	log     *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	reaper sync.WaitGroup
}

type slot struct {
	machine *statemachine.Machine[SubscriptionState, subscriptionEvent]

	// Set while Active.
	table    Table
	interest InterestSet
	sub      changefeed.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	closing  atomic.Bool
}

// NewSubscriptionManager creates a manager. Subscriptions live until they
// are reconciled away, Close is called or base is cancelled.
func NewSubscriptionManager(base context.Context, src changefeed.Source, handler EventHandler, log *slog.Logger) *SubscriptionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SubscriptionManager{
		base:    base,
		src:     src,
		handler: handler,
		log:     log,
		slots:   make(map[string]*slot),
	}
}

func (m *SubscriptionManager) newSlot(table string) *slot {
	log := m.log.With(logger.Table(table))
	return &slot{
		machine: statemachine.MustNew(StateInactive,
			statemachine.WithTransitions(
				statemachine.Transition[SubscriptionState, subscriptionEvent]{From: StateInactive, To: StateTransitioning, Event: evOpen},
				statemachine.Transition[SubscriptionState, subscriptionEvent]{From: StateTransitioning, To: StateActive, Event: evOpened},
				statemachine.Transition[SubscriptionState, subscriptionEvent]{From: StateTransitioning, To: StateInactive, Event: evFailed},
				statemachine.Transition[SubscriptionState, subscriptionEvent]{From: StateActive, To: StateTransitioning, Event: evClose},
				statemachine.Transition[SubscriptionState, subscriptionEvent]{From: StateTransitioning, To: StateInactive, Event: evClosed},
			),
			statemachine.WithObserver[SubscriptionState, subscriptionEvent](func(ctx context.Context, from, to SubscriptionState, ev subscriptionEvent) {
				log.DebugContext(ctx, "subscription state changed",
					slog.String("from", string(from)),
					logger.State(string(to)),
					slog.String("event", string(ev)),
				)
			}),
		),
	}
}

// Reconcile diffs the desired subscriptions against the open ones. It closes
// every handle whose table is no longer desired or whose table definition or
// interest snapshot changed, and opens one for every desired table without a
// handle. Nothing is open while d is disabled or its interest set is empty.
//
// Open failures leave the table inactive until the next call and are
// returned joined as *SubscriptionOpenError after being logged.
func (m *SubscriptionManager) Reconcile(ctx context.Context, d Desired) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}

	want := make(map[string]Table, len(d.Tables))
	if d.Enabled && !d.Interest.Empty() {
		for _, t := range d.Tables {
			want[t.Name] = t
		}
	}

	for name, s := range m.slots {
		t, keep := want[name]
		if s.machine.Is(StateActive) && (!keep || !t.Equal(s.table) || !d.Interest.Equal(s.interest)) {
			m.closeSlot(ctx, s)
		}
		if !keep && s.machine.Is(StateInactive) {
			delete(m.slots, name)
		}
	}

	var errs []error
	for name, t := range want {
		s, ok := m.slots[name]
		if !ok {
			s = m.newSlot(name)
			m.slots[name] = s
		}
		if !s.machine.Is(StateInactive) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, &SubscriptionOpenError{Table: name, Err: err})
			continue
		}
		if err := m.openSlot(ctx, s, t, d.Interest); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// openSlot must be called with m.mu held.
func (m *SubscriptionManager) openSlot(ctx context.Context, s *slot, t Table, interest InterestSet) error {
	_ = s.machine.Fire(ctx, evOpen, nil)

	// The handle lives on the session scope; ctx only bounds the open.
	subCtx, cancel := context.WithCancel(m.base)
	stop := context.AfterFunc(ctx, cancel)
	sub, err := m.src.Subscribe(subCtx, t.Filter())
	if !stop() {
		if err == nil {
			_ = sub.Close()
		}
		err = errors.Join(ctx.Err(), err)
	}
	if err != nil {
		cancel()
		_ = s.machine.Fire(ctx, evFailed, nil)
		openErr := &SubscriptionOpenError{Table: t.Name, Err: err}
		m.log.WarnContext(ctx, "subscription open failed", logger.Table(t.Name), logger.Error(err))
		return openErr
	}

	s.table = t
	s.interest = interest
	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.closing.Store(false)
	_ = s.machine.Fire(ctx, evOpened, nil)

	go m.consume(subCtx, s, t, interest, sub, s.done)

	m.log.InfoContext(ctx, "subscription opened", logger.Table(t.Name), logger.Count(interest.Len()))
	return nil
}

func (m *SubscriptionManager) consume(ctx context.Context, s *slot, t Table, interest InterestSet, sub changefeed.Subscription, done chan struct{}) {
	defer close(done)

	for e := range sub.Events() {
		m.handler(ctx, t, interest, e)
	}

	if s.closing.Load() {
		return
	}

	// The feed ended on its own. Release the handle so the table reads as
	// inactive and the next reconcile reopens it.
	if ctx.Err() == nil {
		m.log.Warn("subscription ended unexpectedly", logger.Table(t.Name), logger.Error(sub.Err()))
	}
	m.reaper.Add(1)
	go func() {
		defer m.reaper.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if s.sub == sub && s.machine.Is(StateActive) {
			m.closeSlot(m.base, s)
		}
	}()
}

// closeSlot must be called with m.mu held. It returns once the handle is
// released and the consumer has drained.
func (m *SubscriptionManager) closeSlot(ctx context.Context, s *slot) {
	_ = s.machine.Fire(ctx, evClose, nil)

	s.closing.Store(true)
	s.cancel()
	if err := s.sub.Close(); err != nil {
		m.log.WarnContext(ctx, "subscription close failed", logger.Table(s.table.Name), logger.Error(err))
	}
	<-s.done

	name := s.table.Name
	s.sub = nil
	s.cancel = nil
	s.done = nil
	s.interest = InterestSet{}
	_ = s.machine.Fire(ctx, evClosed, nil)

	m.log.InfoContext(ctx, "subscription closed", logger.Table(name))
}

// Close moves every table to inactive and waits for all consumers. Later
// Reconcile calls fail with ErrSessionClosed. Idempotent.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		for name, s := range m.slots {
			if s.machine.Is(StateActive) {
				m.closeSlot(context.Background(), s)
			}
			delete(m.slots, name)
		}
	}
	m.mu.Unlock()

	m.reaper.Wait()
}

// Active returns the number of open subscriptions.
func (m *SubscriptionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.slots {
		if s.machine.Is(StateActive) {
			n++
		}
	}
	return n
}

// State returns the state of table; untracked tables are inactive.
func (m *SubscriptionManager) State(table string) SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.slots[table]; ok {
		return s.machine.Current()
	}
	return StateInactive
}
