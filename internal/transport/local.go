package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// LocalDialer opens a PTY-backed shell on this machine for profiles with
// host "local". It satisfies the same Conn contract as the SSH dialer, so
// workers and tests run against it unchanged.
type LocalDialer struct {
	// Shell overrides the spawned shell; empty falls back to $SHELL then
	// /bin/bash.
	Shell string
}

// Dial starts the shell under a fresh PTY of the given size.
func (d *LocalDialer) Dial(ctx context.Context, profile *ConnectionProfile, cols, rows int) (Conn, error) {
	shell := d.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM="+termType)
	for k, v := range profile.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("start local shell: %w", err)
	}

	conn := &localConn{cmd: cmd, ptmx: ptmx}
	go cmd.Wait() // reap
	return conn, nil
}

type localConn struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	closeOnce sync.Once
}

func (c *localConn) Read(p []byte) (int, error) {
	return c.ptmx.Read(p)
}

func (c *localConn) Write(p []byte) (int, error) {
	return c.ptmx.Write(p)
}

func (c *localConn) Resize(cols, rows int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

func (c *localConn) KeepAlive() error {
	if c.cmd.Process == nil {
		return fmt.Errorf("local shell not running")
	}
	return c.cmd.Process.Signal(syscall.Signal(0))
}

func (c *localConn) Close() error {
	c.closeOnce.Do(func() {
		c.ptmx.Close()
		if c.cmd.Process != nil {
			c.cmd.Process.Kill()
		}
	})
	return nil
}
