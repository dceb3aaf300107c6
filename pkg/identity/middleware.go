package identity

import (
	"net/http"
	"strings"
)

// TokenExtractorFunc pulls a raw token out of a request.
type TokenExtractorFunc func(r *http.Request) (string, bool)

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// QueryTokenExtractor reads the token from a query parameter. EventSource
// cannot set headers, so stream endpoints fall back to it.
func QueryTokenExtractor(param string) TokenExtractorFunc {
	return func(r *http.Request) (string, bool) {
		token := r.URL.Query().Get(param)
		return token, token != ""
	}
}

// Middleware verifies the request token and stores the Identity in the
// request context. Requests without a valid token get 401.
func Middleware(v *Verifier, extractors ...TokenExtractorFunc) func(http.Handler) http.Handler {
	if len(extractors) == 0 {
		extractors = []TokenExtractorFunc{BearerTokenExtractor, QueryTokenExtractor("access_token")}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			for _, extract := range extractors {
				if t, ok := extract(r); ok {
					token = t
					break
				}
			}

			id, err := v.Parse(token)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
