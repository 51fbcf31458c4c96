package wsclient

import (
	"math/rand"
	"time"
)

// Backoff yields exponential delays with full jitter: each delay is drawn
// uniformly from [0, min(max, base*2^attempt)].
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
	rnd     func(n int64) int64
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max, rnd: rand.Int63n}
}

// Ceiling is the upper bound of the next delay.
func (b *Backoff) Ceiling() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

func (b *Backoff) Next() time.Duration {
	ceil := b.Ceiling()
	b.attempt++
	if ceil <= 0 {
		return 0
	}
	return time.Duration(b.rnd(int64(ceil) + 1))
}

func (b *Backoff) Reset() { b.attempt = 0 }
