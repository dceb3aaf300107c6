// Package ratelimiter throttles expensive per-user endpoints with a token
// bucket. Buckets live in process memory or, when several replicas serve
// the same users, in Redis.
//
//	l, err := ratelimiter.New(ratelimiter.NewRedisStore(client), cfg)
//	r.With(ratelimiter.Middleware(l, ratelimiter.ByUser("refresh"), log)).Post("/refresh", h.Refresh)
package ratelimiter
