package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const termType = "xterm-256color"

// SSHDialer establishes PTY-backed shell channels over SSH. All dialers in
// a process share one HostKeyStore.
type SSHDialer struct {
	hostKeys *HostKeyStore
}

// NewSSHDialer creates a dialer verifying against the given store.
func NewSSHDialer(store *HostKeyStore) *SSHDialer {
	return &SSHDialer{hostKeys: store}
}

// Dial connects, authenticates, and opens a shell channel with a PTY of
// the given size. Every failure is a chained, phase-readable error; the
// caller decides whether and how to retry.
func (d *SSHDialer) Dial(ctx context.Context, profile *ConnectionProfile, cols, rows int) (Conn, error) {
	signer, err := loadSigner(profile.KeyPath)
	if err != nil {
		return nil, err
	}

	verify, err := d.hostKeys.Callback(profile.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("host key verifier: %w", err)
	}

	timeout := profile.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg := &ssh.ClientConfig{
		User:            profile.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: verify,
		Timeout:         timeout,
	}

	var proxyClient *ssh.Client
	var raw net.Conn
	if profile.ProxyEnabled {
		proxyClient, raw, err = d.dialThroughProxy(ctx, profile, cfg, timeout)
	} else {
		raw, err = (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", profile.Addr())
		if err != nil {
			err = fmt.Errorf("connect %s: %w", profile.Addr(), err)
		}
	}
	if err != nil {
		return nil, err
	}

	sshc, chans, reqs, err := ssh.NewClientConn(raw, profile.Addr(), cfg)
	if err != nil {
		raw.Close()
		if proxyClient != nil {
			proxyClient.Close()
		}
		return nil, fmt.Errorf("handshake %s: %w", profile.Addr(), err)
	}
	client := ssh.NewClient(sshc, chans, reqs)

	conn, err := openShell(client, proxyClient, profile, cols, rows)
	if err != nil {
		client.Close()
		if proxyClient != nil {
			proxyClient.Close()
		}
		return nil, err
	}
	return conn, nil
}

func (d *SSHDialer) dialThroughProxy(ctx context.Context, profile *ConnectionProfile, cfg *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, net.Conn, error) {
	proxyAddr := fmt.Sprintf("%s:%d", profile.Proxy.Host, profile.Proxy.Port)
	proxyCfg := &ssh.ClientConfig{
		User:            profile.Proxy.Username,
		Auth:            cfg.Auth,
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         timeout,
	}

	raw, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect proxy %s: %w", proxyAddr, err)
	}
	pc, chans, reqs, err := ssh.NewClientConn(raw, proxyAddr, proxyCfg)
	if err != nil {
		raw.Close()
		return nil, nil, fmt.Errorf("handshake proxy %s: %w", proxyAddr, err)
	}
	proxyClient := ssh.NewClient(pc, chans, reqs)

	tunneled, err := proxyClient.Dial("tcp", profile.Addr())
	if err != nil {
		proxyClient.Close()
		return nil, nil, fmt.Errorf("tunnel %s via %s: %w", profile.Addr(), proxyAddr, err)
	}
	return proxyClient, tunneled, nil
}

func openShell(client, proxyClient *ssh.Client, profile *ConnectionProfile, cols, rows int) (Conn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for k, v := range profile.Env {
		// Servers commonly restrict AcceptEnv; refusals are not fatal.
		_ = session.Setenv(k, v)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open stdout: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType, rows, cols, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &sshConn{
		client:  client,
		proxy:   proxyClient,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// loadSigner reads and parses the private key, chaining a descriptive
// error for every failure mode the profile can hit.
func loadSigner(path string) (ssh.Signer, error) {
	material, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(material)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key %s is passphrase-protected, which is not supported: %w", path, err)
		}
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return signer, nil
}

type sshConn struct {
	client  *ssh.Client
	proxy   *ssh.Client
	session *ssh.Session

	stdin     io.WriteCloser
	stdout    io.Reader
	closeOnce sync.Once
}

func (c *sshConn) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *sshConn) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

func (c *sshConn) Resize(cols, rows int) error {
	return c.session.WindowChange(rows, cols)
}

func (c *sshConn) KeepAlive() error {
	_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

func (c *sshConn) Close() error {
	c.closeOnce.Do(func() {
		c.session.Close()
		c.client.Close()
		if c.proxy != nil {
			c.proxy.Close()
		}
	})
	return nil
}
