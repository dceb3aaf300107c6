package toast

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/notifications"
	"github.com/unipress/newsdesk/pkg/ratelimiter"
)

// Handler serves the notification endpoints of signed-in users.
type Handler struct {
	hub      *notifications.Hub
	log      *slog.Logger
	selector string
	refresh  *ratelimiter.Limiter
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithContainer sets the CSS selector toasts are appended to.
func WithContainer(selector string) HandlerOption {
	return func(h *Handler) {
		if selector != "" {
			h.selector = selector
		}
	}
}

// WithRefreshLimit throttles POST /refresh per user.
func WithRefreshLimit(l *ratelimiter.Limiter) HandlerOption {
	return func(h *Handler) {
		h.refresh = l
	}
}

func NewHandler(hub *notifications.Hub, log *slog.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		hub:      hub,
		log:      log.With(logger.Component("toast")),
		selector: DefaultSelector,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the handler behind token authentication.
func Routes(hub *notifications.Hub, verifier *identity.Verifier, log *slog.Logger, opts ...HandlerOption) chi.Router {
	h := NewHandler(hub, log, opts...)

	r := chi.NewRouter()
	r.Use(identity.Middleware(verifier))
	r.Get("/stream", h.Stream)
	r.Post("/enabled", h.SetEnabled)
	if h.refresh != nil {
		r.With(ratelimiter.Middleware(h.refresh, ratelimiter.ByUser("refresh"), h.log)).Post("/refresh", h.Refresh)
	} else {
		r.Post("/refresh", h.Refresh)
	}
	return r
}

// Stream attaches the caller to their session and forwards toasts until the
// client disconnects or the server shuts down.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity.FromContext(ctx)
	if !ok {
		http.Error(w, ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	sub, detach, err := h.hub.Attach(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, notifications.ErrHubFull) || errors.Is(err, notifications.ErrSessionClosed) {
			status = http.StatusServiceUnavailable
		}
		if ctx.Err() == nil {
			h.log.LogAttrs(ctx, slog.LevelError, "attach failed", logger.UserID(id.UserID), logger.Error(err))
			http.Error(w, http.StatusText(status), status)
		}
		return
	}
	defer detach()

	sse := datastar.NewSSE(w, r)
	sink := NewSSESink(sse, WithSelector(h.selector))

	h.log.DebugContext(ctx, "stream opened", logger.UserID(id.UserID))
	defer func() {
		attrs := []slog.Attr{logger.UserID(id.UserID)}
		if n := sub.Dropped(); n > 0 {
			attrs = append(attrs, slog.Uint64("dropped", n))
		}
		h.log.LogAttrs(ctx, slog.LevelDebug, "stream closed", attrs...)
	}()

	toasts := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-toasts:
			if !ok {
				return
			}
			if err := sink.Send(msg.Data); err != nil {
				h.log.DebugContext(ctx, "stream write failed", logger.UserID(id.UserID), logger.Error(err))
				return
			}
		}
	}
}

// SetEnabled flips the global notification flag of the caller's session.
// The flag is read from the "enabled" form value.
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	enabled, err := strconv.ParseBool(r.FormValue("enabled"))
	if err != nil {
		http.Error(w, "enabled must be a boolean", http.StatusBadRequest)
		return
	}

	if err := session.SetEnabled(r.Context(), enabled); err != nil {
		h.fail(w, r, "toggle failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh reloads the caller's preferences and interest set, for example
// after they changed their settings or published new content.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	err := errors.Join(session.RefreshPreferences(ctx), session.RefreshInterest(ctx))
	if errors.Is(err, notifications.ErrSessionClosed) || errors.Is(err, notifications.ErrSubscriptionOpen) {
		h.fail(w, r, "refresh failed", err)
		return
	}
	if err != nil {
		// Lookup failures already fell back to defaults.
		h.log.LogAttrs(ctx, slog.LevelWarn, "refresh used defaults", logger.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*notifications.Session, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return nil, false
	}
	session, ok := h.hub.Session(id.UserID)
	if !ok {
		http.Error(w, ErrNoSession.Error(), http.StatusConflict)
		return nil, false
	}
	return session, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, notifications.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, notifications.ErrSubscriptionOpen):
		status = http.StatusServiceUnavailable
	}
	h.log.LogAttrs(r.Context(), slog.LevelWarn, msg, logger.Error(err))
	http.Error(w, http.StatusText(status), status)
}
