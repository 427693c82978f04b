package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shellgrid/shellgrid/internal/infrastructure/config"
	"github.com/shellgrid/shellgrid/internal/logging"
	"github.com/shellgrid/shellgrid/internal/session"
)

func newTestRuntime() *sessionRuntime {
	return newSessionRuntime("alpha", config.TerminalConfig{
		Cols:          20,
		Rows:          5,
		ScrollbackCap: 100,
	}, logging.NewNop())
}

func TestRuntimeResetOnReconnect(t *testing.T) {
	t.Run("reset is deferred to the data path", func(t *testing.T) {
		rt := newTestRuntime()
		cb := rt.callbacks()

		// The old stream dies mid-sequence.
		cb.OnData([]byte("\x1b[3"))

		// The state change itself must not touch the parser; it runs on a
		// different goroutine than the reader.
		version := rt.buf.Version()
		cb.OnStateChanged(session.StateConnected)
		assert.Equal(t, version, rt.buf.Version())

		// The fresh connection's first bytes parse from a clean slate: the
		// dangling sequence is dropped rather than swallowing "ok".
		cb.OnData([]byte("ok"))
		assert.Equal(t, 'o', rt.buf.Cell(0, 0).Rune)
		assert.Equal(t, 'k', rt.buf.Cell(0, 1).Rune)
	})

	t.Run("other state changes leave the parser alone", func(t *testing.T) {
		rt := newTestRuntime()
		cb := rt.callbacks()

		cb.OnData([]byte("\x1b[3"))
		cb.OnStateChanged(session.StateDisconnected)
		cb.OnStateChanged(session.StateReconnecting)

		// Still mid-sequence: the tail of the split SGR completes.
		cb.OnData([]byte("1mx"))
		attr := rt.buf.Cell(0, 0).Attr
		assert.Equal(t, uint8(0xCC), attr.FG.R)
	})
}
