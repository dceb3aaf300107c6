// Package statemachine implements a small, concurrency-safe finite state
// machine over string-backed state and event types.
//
// States and events are plain named string types, so each user declares its
// own vocabulary and the compiler keeps them apart:
//
//	type State string
//	type Event string
//
//	const (
//	    Inactive      State = "inactive"
//	    Transitioning State = "transitioning"
//	    Active        State = "active"
//
//	    Open   Event = "open"
//	    Opened Event = "opened"
//	)
//
//	m := statemachine.MustNew(Inactive,
//	    statemachine.WithTransitions(
//	        statemachine.Transition[State, Event]{From: Inactive, To: Transitioning, Event: Open},
//	        statemachine.Transition[State, Event]{From: Transitioning, To: Active, Event: Opened},
//	    ),
//	)
//	if err := m.Fire(ctx, Open, nil); err != nil {
//	    // errors.Is(err, statemachine.ErrNoTransition)
//	}
//
// Guards decide whether a candidate transition may run; the first candidate
// whose guards all pass wins. Actions run in order before the state changes
// and any error aborts the transition. Observers run after the change and are
// convenient for logging.
package statemachine
