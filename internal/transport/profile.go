package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KnownHostsPolicy selects how host keys are verified.
type KnownHostsPolicy string

const (
	// PolicyStrict rejects any key not already present in the trust store.
	PolicyStrict KnownHostsPolicy = "STRICT"
	// PolicyAcceptNew auto-accepts and persists first-seen keys, but still
	// rejects keys that conflict with a stored one.
	PolicyAcceptNew KnownHostsPolicy = "ACCEPT_NEW"
	// PolicyTrustAll accepts any key unconditionally.
	PolicyTrustAll KnownHostsPolicy = "TRUST_ALL"
)

// LocalHost is the sentinel host value selecting the local PTY dialer
// instead of SSH.
const LocalHost = "local"

// ProxyConfig describes an optional jump host.
type ProxyConfig struct {
	Host     string
	Port     int
	Username string
}

// ConnectionProfile is the engine's read-only view of a connection record
// owned by the external settings layer.
type ConnectionProfile struct {
	ID             string
	Host           string
	Port           int
	Username       string
	KeyPath        string
	KnownHosts     KnownHostsPolicy
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Compression    bool
	Env            map[string]string
	ProxyEnabled   bool
	Proxy          *ProxyConfig
	InitialCommand string
}

var (
	errBlankHost     = errors.New("host must not be blank")
	errBlankUsername = errors.New("username must not be blank")
	errBlankKeyPath  = errors.New("key path must not be blank")
)

// Validate checks the profile invariants. Local profiles skip the SSH-only
// fields.
func (p *ConnectionProfile) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return errBlankHost
	}
	if p.IsLocal() {
		return nil
	}
	if strings.TrimSpace(p.Username) == "" {
		return errBlankUsername
	}
	if strings.TrimSpace(p.KeyPath) == "" {
		return errBlankKeyPath
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", p.Port)
	}
	if p.ProxyEnabled {
		if p.Proxy == nil || strings.TrimSpace(p.Proxy.Host) == "" {
			return errors.New("proxy enabled but proxy host missing")
		}
		if p.Proxy.Port < 1 || p.Proxy.Port > 65535 {
			return fmt.Errorf("proxy port %d out of range [1,65535]", p.Proxy.Port)
		}
	} else if p.Proxy != nil {
		return errors.New("proxy configured but not enabled")
	}
	switch p.KnownHosts {
	case PolicyStrict, PolicyAcceptNew, PolicyTrustAll, "":
	default:
		return fmt.Errorf("unknown known-hosts policy %q", p.KnownHosts)
	}
	return nil
}

// IsLocal reports whether the profile targets the local PTY dialer.
func (p *ConnectionProfile) IsLocal() bool {
	return p.Host == LocalHost
}

// Addr returns the dial address.
func (p *ConnectionProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}
