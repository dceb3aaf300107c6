// Package webhook forwards notifications to an HTTP endpoint such as a
// push gateway. Deliveries are JSON, optionally signed with HMAC-SHA256
// over "<timestamp>.<body>", retried with exponential backoff and guarded
// by a circuit breaker so a dead endpoint does not tie up delivery.
//
// Receivers check deliveries with Verify:
//
//	if err := webhook.Verify(secret, body, r.Header, 5*time.Minute); err != nil {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//		return
//	}
package webhook
