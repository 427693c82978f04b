package session

import (
	"math/rand"
	"time"
)

// Backoff computes jittered exponential reconnection delays.
type Backoff struct {
	// Base is the attempt-zero delay. Defaults to 1s.
	Base time.Duration
	// Cap bounds the un-jittered delay. Defaults to 60s.
	Cap time.Duration
}

const backoffJitter = 0.25

// Delay returns min(Base·2^attempt, Cap) perturbed by ±25% jitter. Jitter
// keeps a fleet of workers reconnecting to one dead host from retrying in
// lockstep.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	cap := b.Cap
	if cap <= 0 {
		cap = 60 * time.Second
	}

	d := cap
	if attempt < 63 {
		if shifted := base << uint(attempt); shifted > 0 && shifted < cap {
			d = shifted
		}
	}

	jitter := 1 - backoffJitter + rand.Float64()*2*backoffJitter
	return time.Duration(float64(d) * jitter)
}
