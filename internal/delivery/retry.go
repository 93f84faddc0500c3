package delivery

import (
	"math/rand"
	"time"
)

// JitterFactor is the ±percentage of jitter applied to delays.
const JitterFactor = 0.2

// Backoff computes retry delays: Base doubled per failed attempt, capped
// at Max, with ±Jitter spread.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay returns the wait after the given number of failed attempts.
// attempts is 1 after the first failure.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	}
	return d
}

// IsExhausted reports whether attempts has reached maxAttempts.
// A maxAttempts of zero or less never exhausts.
func IsExhausted(attempts, maxAttempts int) bool {
	return maxAttempts > 0 && attempts >= maxAttempts
}
