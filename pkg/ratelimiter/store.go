package ratelimiter

import "context"

// Store keeps bucket state. Take consumes n tokens from key's bucket when
// enough are available and reports the resulting state either way; a denied
// request leaves the bucket untouched.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config) (Result, error)
	Reset(ctx context.Context, key string) error
}
