package network

import (
	"math/rand"
	"time"
)

// Backoff produces capped exponential delays with additive jitter.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  time.Duration

	cur time.Duration
}

// Next returns the delay before the next attempt and doubles the base delay
// up to Max.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.cur <= 0 {
		b.cur = b.Initial
	}
	d := withJitter(b.cur, b.Jitter)
	if b.cur < b.Max {
		b.cur *= 2
		if b.cur > b.Max {
			b.cur = b.Max
		}
	}
	return d
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.cur = 0
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	// add random 0..jitter
	return d + time.Duration(rand.Int63n(int64(jitter)+1))
}
