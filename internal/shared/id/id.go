// Package id provides centralized ID generation for the engine.
//
// IDs are ULIDs with type-specific prefixes (sess_*, wrk_*), which keeps
// logs readable and makes a worker id impossible to confuse with the
// session id handed in by the settings layer.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session.
type SessionID string

// WorkerID identifies one SessionWorker instance. A session that is torn
// down and recreated gets a fresh WorkerID.
type WorkerID string

const (
	sessionPrefix = "sess"
	workerPrefix  = "wrk"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

func defaultGen() *Generator {
	once.Do(func() {
		defaultGenerator = &Generator{entropy: rand.Reader}
	})
	return defaultGenerator
}

func (g *Generator) next(prefix string) string {
	g.entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.entropyMu.Unlock()
	return fmt.Sprintf("%s_%s", prefix, u.String())
}

// NewSessionID generates a new prefixed session id.
func NewSessionID() SessionID {
	return SessionID(defaultGen().next(sessionPrefix))
}

// NewWorkerID generates a new prefixed worker id.
func NewWorkerID() WorkerID {
	return WorkerID(defaultGen().next(workerPrefix))
}
