package session

import (
	"sync"
	"time"
)

type rateSample struct {
	at    time.Time
	bytes int
}

// rateWindow tracks bytes over a trailing time window. Stale samples are
// pruned lazily on each query rather than by a background timer.
type rateWindow struct {
	mu      sync.Mutex
	window  time.Duration
	samples []rateSample
}

func newRateWindow(window time.Duration) *rateWindow {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &rateWindow{window: window}
}

func (r *rateWindow) add(n int) {
	r.mu.Lock()
	r.samples = append(r.samples, rateSample{at: time.Now(), bytes: n})
	r.mu.Unlock()
}

// rate returns bytes per second over the trailing window.
func (r *rateWindow) rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	firstLive := len(r.samples)
	for i, s := range r.samples {
		if s.at.After(cutoff) {
			firstLive = i
			break
		}
	}
	r.samples = r.samples[firstLive:]

	var total int
	for _, s := range r.samples {
		total += s.bytes
	}
	return float64(total) / r.window.Seconds()
}
