package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before retry attempt n, starting at 1.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay, 0 disables
}

// DefaultBackoff starts at 500ms and doubles up to 10s with 10% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2, Jitter: 0.1}
}

func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}
