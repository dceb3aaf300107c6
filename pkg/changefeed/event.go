package changefeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Operation is the kind of row mutation.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Row is a decoded table row. Numbers are kept as json.Number.
type Row map[string]any

// String returns the column value as a string. Numbers are formatted in
// decimal. The second result is false when the column is absent, null, an
// empty string or not a scalar.
func (r Row) String(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// Event is one row mutation as delivered by a Source.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Table     string    `json:"table"`
	Operation Operation `json:"op"`
	NewRow    Row       `json:"new,omitempty"`
	OldRow    Row       `json:"old,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Row returns NewRow, or OldRow for deletes.
func (e Event) Row() Row {
	if e.Operation == OpDelete && e.NewRow == nil {
		return e.OldRow
	}
	return e.NewRow
}

// Filter selects the events of one table, optionally narrowed to a set of
// operations. An empty Operations list matches every operation.
type Filter struct {
	Table      string
	Operations []Operation
}

// Validate reports ErrEmptyTable for a filter without a table.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.Table) == "" {
		return ErrEmptyTable
	}
	return nil
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if e.Table != f.Table {
		return false
	}
	return len(f.Operations) == 0 || slices.Contains(f.Operations, e.Operation)
}

// Key identifies the filter, e.g. "comments:INSERT".
func (f Filter) Key() string {
	if len(f.Operations) == 0 {
		return f.Table + ":*"
	}
	ops := make([]string, len(f.Operations))
	for i, op := range f.Operations {
		ops[i] = string(op)
	}
	slices.Sort(ops)
	return f.Table + ":" + strings.Join(ops, ",")
}

// Decode parses the JSON wire format emitted by the database trigger and by
// RedisPublisher:
//
//	{"id":"...","table":"comments","op":"INSERT","new":{...},"old":null,"ts":"..."}
//
// A missing timestamp is set to the decode time.
func Decode(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var e Event
	if err := dec.Decode(&e); err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}

	e.Operation = Operation(strings.ToUpper(string(e.Operation)))
	if e.Table == "" {
		return Event{}, errors.Join(ErrInvalidPayload, ErrEmptyTable)
	}
	if !e.Operation.Valid() {
		return Event{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidPayload, e.Operation)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e, nil
}

// Encode renders e in the wire format understood by Decode.
func Encode(e Event) ([]byte, error) {
	if e.Table == "" {
		return nil, ErrEmptyTable
	}
	return json.Marshal(e)
}
