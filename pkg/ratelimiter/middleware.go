package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

// KeyFunc extracts the bucket key from a request. An empty key skips the
// limiter.
type KeyFunc func(r *http.Request) string

// ByUser keys buckets by the authenticated user, namespaced by scope.
func ByUser(scope string) KeyFunc {
	return func(r *http.Request) string {
		id, ok := identity.FromContext(r.Context())
		if !ok || id.Anonymous() {
			return ""
		}
		return scope + ":" + id.UserID
	}
}

// Middleware rejects requests over the limit with 429. Store failures let
// the request through and are logged.
func Middleware(l *Limiter, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				log.WarnContext(r.Context(), "rate limit check failed", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				if secs := int(res.RetryAfter().Seconds()); secs > 0 {
					h.Set("Retry-After", strconv.Itoa(secs))
				}
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
