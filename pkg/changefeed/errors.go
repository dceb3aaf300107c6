package changefeed

import "errors"

var (
	ErrSourceClosed   = errors.New("changefeed: source is closed")
	ErrInvalidPayload = errors.New("changefeed: invalid event payload")
	ErrEmptyTable     = errors.New("changefeed: table name is empty")
	ErrListen         = errors.New("changefeed: failed to listen")
)
