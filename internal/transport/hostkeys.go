package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyStore resolves known-hosts policies to verifier callbacks against
// a single trust-store file. The store is shared by every dialer in the
// process; first-seen persistence under ACCEPT_NEW is serialized behind one
// mutex so concurrent sessions with different policies cannot interleave
// writes mid-verification.
type HostKeyStore struct {
	path string
	mu   sync.Mutex
}

// NewHostKeyStore creates a store backed by the given known_hosts file.
// The file is created on first use if missing.
func NewHostKeyStore(path string) *HostKeyStore {
	return &HostKeyStore{path: path}
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "known_hosts"
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// Callback builds the host-key verifier for one policy.
func (s *HostKeyStore) Callback(policy KnownHostsPolicy) (ssh.HostKeyCallback, error) {
	switch policy {
	case PolicyTrustAll:
		return ssh.InsecureIgnoreHostKey(), nil
	case PolicyAcceptNew:
		verify, err := s.fileCallback()
		if err != nil {
			return nil, err
		}
		return s.acceptNew(verify), nil
	case PolicyStrict, "":
		return s.fileCallback()
	default:
		return nil, fmt.Errorf("unknown known-hosts policy %q", policy)
	}
}

func (s *HostKeyStore) fileCallback() (ssh.HostKeyCallback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFile(); err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s: %w", s.path, err)
	}
	return cb, nil
}

// acceptNew wraps a strict verifier: unknown hosts are persisted and
// accepted, keys conflicting with a stored entry are still rejected.
func (s *HostKeyStore) acceptNew(verify ssh.HostKeyCallback) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return s.persist(hostname, remote, key)
		}
		return err
	}
}

func (s *HostKeyStore) persist(hostname string, remote net.Addr, key ssh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The caller verified against a snapshot loaded before the lock; a
	// concurrent first connection may already have persisted this host.
	if current, err := knownhosts.New(s.path); err == nil {
		if current(hostname, remote, key) == nil {
			return nil
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("persist host key for %s: %w", hostname, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{hostname}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("persist host key for %s: %w", hostname, err)
	}
	return nil
}

func (s *HostKeyStore) ensureFile() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create known hosts dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create known hosts file: %w", err)
	}
	return f.Close()
}
