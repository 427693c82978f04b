package transport

import (
	"context"
	"io"
)

// Conn is one established shell channel. Read returns the remote shell's
// output stream; Write feeds its input. Implementations are safe for one
// concurrent reader plus one concurrent writer.
type Conn interface {
	io.Reader
	io.Writer

	// Resize signals a window change to the remote PTY. Best effort.
	Resize(cols, rows int) error

	// KeepAlive probes connection liveness. An error means the link is
	// gone and the caller should treat it as connection loss.
	KeepAlive() error

	// Close tears the channel and its underlying session down. Idempotent.
	Close() error
}

// Dialer establishes shell channels for connection profiles.
type Dialer interface {
	Dial(ctx context.Context, profile *ConnectionProfile, cols, rows int) (Conn, error)
}
