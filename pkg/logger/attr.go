package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// ActorID records who caused a row mutation under the key "actor_id".
func ActorID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("actor_id", id)
}

// EntityID records the content item a mutation refers to.
func EntityID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("entity_id", id)
}

// Table records the tracked table name under the key "table".
func Table(name string) slog.Attr {
	return slog.String("table", name)
}

// Operation records a change operation (INSERT, UPDATE, DELETE).
func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// Category records a notification category.
func Category(name string) slog.Attr {
	return slog.String("category", name)
}

// State records a state machine state under the key "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// EventID records a change event identifier. Empty ids are omitted.
func EventID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("event_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Count records a count under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
