package ratelimiter

import (
	"fmt"
	"time"
)

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Limit     int       // bucket capacity
	Remaining int       // tokens left after this check
	ResetAt   time.Time // next refill
}

// RetryAfter returns how long to wait before the next attempt, or 0 when
// the check was allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config describes a token bucket. The env tags make it loadable directly
// for the refresh endpoint limiter.
type Config struct {
	Capacity       int           `env:"REFRESH_LIMIT_BURST" envDefault:"5"`     // Capacity is the burst size.
	RefillRate     int           `env:"REFRESH_LIMIT_REFILL" envDefault:"1"`    // RefillRate is the tokens added per interval.
	RefillInterval time.Duration `env:"REFRESH_LIMIT_INTERVAL" envDefault:"1m"` // RefillInterval is the refill period.
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// refill returns the token count and refill timestamp after the intervals
// elapsed since last. The timestamp advances by whole intervals so partial
// progress is never lost.
func (c Config) refill(tokens int, last, now time.Time) (int, time.Time) {
	if now.Before(last) {
		return tokens, last
	}
	// Capped so huge gaps cannot overflow.
	intervals := min(int64(now.Sub(last)/c.RefillInterval), int64(c.Capacity/c.RefillRate+1))
	if intervals == 0 {
		return tokens, last
	}
	tokens = min(tokens+int(intervals)*c.RefillRate, c.Capacity)
	return tokens, last.Add(time.Duration(intervals) * c.RefillInterval)
}
