package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/shellgrid/shellgrid/internal/transport"
)

// Manifest is the hand-off format from the settings layer: the connection
// profiles and the sessions that reference them.
type Manifest struct {
	Profiles []ProfileEntry `yaml:"profiles"`
	Sessions []SessionEntry `yaml:"sessions"`
}

// ProfileEntry mirrors transport.ConnectionProfile with YAML-friendly
// field types.
type ProfileEntry struct {
	ID                string            `yaml:"id"`
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	Username          string            `yaml:"username"`
	KeyPath           string            `yaml:"key_path"`
	KnownHosts        string            `yaml:"known_hosts"`
	KeepAliveSeconds  int               `yaml:"keep_alive_seconds"`
	ConnectTimeoutSec int               `yaml:"connect_timeout_seconds"`
	Compression       bool              `yaml:"compression"`
	Env               map[string]string `yaml:"env"`
	Proxy             *ProxyEntry       `yaml:"proxy"`
	InitialCommand    string            `yaml:"initial_command"`
}

// ProxyEntry describes an optional jump host.
type ProxyEntry struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
}

// SessionEntry names one session and the profile it runs on.
type SessionEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// profile resolves a profile entry by id into the engine's record.
func (m *Manifest) profile(profileID string) (*transport.ConnectionProfile, error) {
	for _, e := range m.Profiles {
		if e.ID != profileID {
			continue
		}
		p := &transport.ConnectionProfile{
			ID:             e.ID,
			Host:           e.Host,
			Port:           e.Port,
			Username:       e.Username,
			KeyPath:        e.KeyPath,
			KnownHosts:     transport.KnownHostsPolicy(e.KnownHosts),
			KeepAlive:      time.Duration(e.KeepAliveSeconds) * time.Second,
			ConnectTimeout: time.Duration(e.ConnectTimeoutSec) * time.Second,
			Compression:    e.Compression,
			Env:            e.Env,
			InitialCommand: e.InitialCommand,
		}
		if e.Proxy != nil {
			p.ProxyEnabled = true
			p.Proxy = &transport.ProxyConfig{
				Host:     e.Proxy.Host,
				Port:     e.Proxy.Port,
				Username: e.Proxy.Username,
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown profile %q", profileID)
}
