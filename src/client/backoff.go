package client

import "time"

// Backoff computes reconnect delays: min(initial * 2^attempt, max) plus
// up to Jitter of that base.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64        // fraction of the base, 0.2 by default
	Rand    func() float64 // uniform in [0, 1)
}

// Base returns the delay before jitter for the given attempt.
func (b Backoff) Base(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Delay returns the jittered delay for the given attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base(attempt)
	if b.Rand == nil || b.Jitter <= 0 {
		return base
	}
	return base + time.Duration(b.Rand()*b.Jitter*float64(base))
}
