package toast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/unipress/newsdesk/pkg/notifications"
)

// DefaultSelector is the container toasts are appended to.
const DefaultSelector = "#toasts"

// SSESink writes toasts to one datastar SSE stream.
type SSESink struct {
	sse      *datastar.ServerSentEventGenerator
	selector string
}

var _ notifications.Sink = (*SSESink)(nil)

// SSESinkOption configures an SSESink.
type SSESinkOption func(*SSESink)

// WithSelector sets the CSS selector of the toast container.
func WithSelector(selector string) SSESinkOption {
	return func(s *SSESink) {
		if selector != "" {
			s.selector = selector
		}
	}
}

func NewSSESink(sse *datastar.ServerSentEventGenerator, opts ...SSESinkOption) *SSESink {
	s := &SSESink{sse: sse, selector: DefaultSelector}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify implements notifications.Sink.
func (s *SSESink) Notify(_ context.Context, message string, d time.Duration) error {
	return s.Send(notifications.Toast{Message: message, Duration: d, At: time.Now()})
}

type toastSignal struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	DurationMS int64  `json:"durationMs"`
	At         int64  `json:"at"`
}

// Send patches the toast element and the toast signal.
func (s *SSESink) Send(t notifications.Toast) error {
	id := "toast-" + uuid.NewString()

	if err := s.sse.PatchElementTempl(Fragment(id, t),
		datastar.WithSelector(s.selector),
		datastar.WithMode(datastar.ElementPatchModeAppend),
	); err != nil {
		return err
	}

	data, err := json.Marshal(map[string]toastSignal{"toast": {
		ID:         id,
		Message:    t.Message,
		DurationMS: t.Duration.Milliseconds(),
		At:         t.At.UnixMilli(),
	}})
	if err != nil {
		return err
	}
	return s.sse.PatchSignals(data)
}
