package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Action executes side effects during a transition. Returning an error
// prevents the transition.
type Action[S ~string, E ~string] func(ctx context.Context, from, to S, event E, data any) error

// Guard evaluates whether a transition should be allowed.
type Guard[S ~string, E ~string] func(ctx context.Context, from S, event E, data any) bool

// Observer is notified after every successful transition.
type Observer[S ~string, E ~string] func(ctx context.Context, from, to S, event E)

// Transition defines a state change triggered by an event, with optional
// guards and actions.
type Transition[S ~string, E ~string] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass
	Actions []Action[S, E] // executed in order before the state changes
}

// Machine is a concurrency-safe finite state machine over string-backed
// state and event types. Transitions are looked up in a
// map[from][event][]Transition; the first one whose guards pass wins.
type Machine[S ~string, E ~string] struct {
	initial     S
	current     S
	transitions map[S]map[E][]Transition[S, E]
	observers   []Observer[S, E]
	mu          sync.RWMutex
}

// Option configures a Machine during construction.
type Option[S ~string, E ~string] func(*Machine[S, E]) error

// New creates a machine in the given initial state.
func New[S ~string, E ~string](initial S, opts ...Option[S, E]) (*Machine[S, E], error) {
	if initial == "" {
		return nil, ErrInvalidState
	}

	m := &Machine[S, E]{
		initial:     initial,
		current:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is like New but panics on configuration errors.
func MustNew[S ~string, E ~string](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition adds a single transition.
func WithTransition[S ~string, E ~string](from, to S, event E, guards []Guard[S, E], actions ...Action[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		return m.AddTransition(Transition[S, E]{From: from, To: to, Event: event, Guards: guards, Actions: actions})
	}
}

// WithTransitions adds several transitions at once.
func WithTransitions[S ~string, E ~string](ts ...Transition[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for i, t := range ts {
			if err := m.AddTransition(t); err != nil {
				return fmt.Errorf("transition[%d] %q->%q on %q: %w", i, t.From, t.To, t.Event, err)
			}
		}
		return nil
	}
}

// WithObserver registers a callback run after each successful transition,
// while the machine lock is held. Observers must not call back into the machine.
func WithObserver[S ~string, E ~string](fn Observer[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
		return nil
	}
}

// AddTransition registers t. Several transitions may share a from/event pair
// to support guard-based branching.
func (m *Machine[S, E]) AddTransition(t Transition[S, E]) error {
	if t.From == "" || t.To == "" || t.Event == "" {
		return ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
	return nil
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is currently in state s.
func (m *Machine[S, E]) Is(s S) bool {
	return m.Current() == s
}

// Fire applies event. A *TransitionError wraps ErrNoTransition when the
// event is not defined for the current state and ErrTransitionRejected when
// every candidate was blocked by a guard.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	if event == "" {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.match(ctx, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	from := m.current
	m.current = t.To
	for _, obs := range m.observers {
		obs(ctx, from, t.To, event)
	}
	return nil
}

// CanFire reports whether Fire would find a transition whose guards pass.
// Actions are not run.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	if event == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.match(ctx, event, data)
	return err == nil
}

// Reset returns the machine to its initial state without running actions.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

// Must be called with lock held.
func (m *Machine[S, E]) match(ctx context.Context, event E, data any) (*Transition[S, E], error) {
	candidates := m.transitions[m.current][event]
	if len(candidates) == 0 {
		return nil, &TransitionError{State: string(m.current), Event: string(event), Err: ErrNoTransition}
	}

	for i := range candidates {
		passed := true
		for _, guard := range candidates[i].Guards {
			if guard != nil && !guard(ctx, m.current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i], nil
		}
	}
	return nil, &TransitionError{State: string(m.current), Event: string(event), Err: ErrTransitionRejected}
}
