package notifications

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed     = errors.New("notifications: session is closed")
	ErrSubscriptionOpen  = errors.New("notifications: failed to open subscription")
	ErrMissingDependency = errors.New("notifications: missing dependency")
	ErrNoTables          = errors.New("notifications: no tables configured")
	ErrInvalidTables     = errors.New("notifications: invalid table catalog")
	ErrAnonymous         = errors.New("notifications: identity has no user")
	ErrHubFull           = errors.New("notifications: too many sessions")
)

// SubscriptionOpenError reports a table whose subscription could not be
// opened. The table stays inactive until the next reconcile.
type SubscriptionOpenError struct {
	Table string
	Err   error
}

func (e *SubscriptionOpenError) Error() string {
	return fmt.Sprintf("notifications: open subscription for %q: %v", e.Table, e.Err)
}

func (e *SubscriptionOpenError) Unwrap() []error {
	return []error{ErrSubscriptionOpen, e.Err}
}
