package session

import (
	"sync"
	"time"
)

// Phase tags where in the lifecycle an error occurred.
type Phase string

const (
	PhaseConnect   Phase = "connect"
	PhaseSend      Phase = "send"
	PhaseRead      Phase = "read"
	PhaseKeepAlive Phase = "keepalive"
	PhaseReconnect Phase = "reconnect"
)

// ErrorRecord is one entry in a worker's bounded error history.
type ErrorRecord struct {
	Time    time.Time
	Phase   Phase
	Message string
	// Err retains the full cause chain for errors.Is/As inspection.
	Err error
}

// errorHistory is a bounded FIFO of error records. Once full, recording
// overwrites the oldest entry in place.
type errorHistory struct {
	mu      sync.Mutex
	records []ErrorRecord
	head    int
	count   int
	max     int
}

func newErrorHistory(max int) *errorHistory {
	if max < 1 {
		max = 1
	}
	return &errorHistory{max: max}
}

func (h *errorHistory) record(phase Phase, err error) {
	if err == nil {
		return
	}
	rec := ErrorRecord{
		Time:    time.Now(),
		Phase:   phase,
		Message: err.Error(),
		Err:     err,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < h.max {
		h.records = append(h.records, rec)
		h.count++
		return
	}
	h.records[h.head] = rec
	h.head = (h.head + 1) % h.max
}

// snapshot returns the retained records, oldest first.
func (h *errorHistory) snapshot() []ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ErrorRecord, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.records[(h.head+i)%len(h.records)]
	}
	return out
}

// last returns the most recent record, or a zero record if none exist.
func (h *errorHistory) last() (ErrorRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return ErrorRecord{}, false
	}
	return h.records[(h.head+h.count-1)%len(h.records)], true
}
