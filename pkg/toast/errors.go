package toast

import "errors"

var (
	ErrUnauthenticated = errors.New("toast: request has no identity")
	ErrNoSession       = errors.New("toast: no live session for user")
)
