package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shellgrid/shellgrid/internal/infrastructure/monitoring"
	"github.com/shellgrid/shellgrid/internal/logging"
	"github.com/shellgrid/shellgrid/internal/transport"
)

// ErrManagerClosed is returned once Shutdown has begun.
var ErrManagerClosed = errors.New("connection manager is shut down")

// Session is the external identity a worker serves: a stable id, a display
// name, and the owning connection profile.
type Session struct {
	ID        string
	Name      string
	ProfileID string
}

// ManagerConfig tunes the manager and the workers it builds.
type ManagerConfig struct {
	ConnectTimeout  time.Duration
	Backoff         Backoff
	ReadChunkSize   int
	ErrorHistoryCap int
	RateWindow      time.Duration

	// StartupSpacing and StartupJitter shape the scheduler's cumulative
	// delay: each batched session starts Spacing+U(0,Jitter) after the
	// previous one, keeping connect bursts off a shared host.
	StartupSpacing time.Duration
	StartupJitter  time.Duration

	KnownHostsPath string

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Manager is the registry of session workers, keyed by session id. It owns
// the shared host-key store and the dialers all workers use.
type Manager struct {
	cfg     ManagerConfig
	log     *logging.Logger
	metrics *monitoring.Metrics

	sshDialer   transport.Dialer
	localDialer transport.Dialer

	mu      sync.Mutex
	workers map[string]*Worker
	closed  bool
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.StartupSpacing <= 0 {
		cfg.StartupSpacing = 100 * time.Millisecond
	}
	if cfg.StartupJitter <= 0 {
		cfg.StartupJitter = 50 * time.Millisecond
	}
	knownHosts := cfg.KnownHostsPath
	if knownHosts == "" {
		knownHosts = transport.DefaultKnownHostsPath()
	}

	return &Manager{
		cfg:         cfg,
		log:         log.Named("manager"),
		metrics:     cfg.Metrics,
		sshDialer:   transport.NewSSHDialer(transport.NewHostKeyStore(knownHosts)),
		localDialer: &transport.LocalDialer{},
		workers:     make(map[string]*Worker),
	}
}

// CreateSession validates the profile, shuts down any prior worker for the
// same session id, and installs a fresh one. The worker is returned
// unconnected so the caller can attach callbacks before starting it.
func (m *Manager) CreateSession(sess Session, profile *transport.ConnectionProfile, cols, rows int) (*Worker, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", profile.ID, err)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	dialer := m.sshDialer
	if profile.IsLocal() {
		dialer = m.localDialer
	}

	worker := NewWorker(Config{
		SessionID:       sess.ID,
		SessionName:     sess.Name,
		Profile:         profile,
		Dialer:          dialer,
		Cols:            cols,
		Rows:            rows,
		ConnectTimeout:  m.cfg.ConnectTimeout,
		Backoff:         m.cfg.Backoff,
		ReadChunkSize:   m.cfg.ReadChunkSize,
		ErrorHistoryCap: m.cfg.ErrorHistoryCap,
		RateWindow:      m.cfg.RateWindow,
		Logger:          m.cfg.Logger,
		Metrics:         m.metrics,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	prior := m.workers[sess.ID]
	m.workers[sess.ID] = worker
	m.mu.Unlock()

	if prior != nil {
		prior.Shutdown()
	} else if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
	}

	m.log.Info("session created",
		zap.String("session", sess.ID),
		zap.String("profile", profile.ID))
	return worker, nil
}

// Get returns the worker for a session id.
func (m *Manager) Get(sessionID string) (*Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[sessionID]
	return w, ok
}

// Workers returns a snapshot of all registered workers.
func (m *Manager) Workers() []*Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	return out
}

// StopSession shuts down and deregisters one worker.
func (m *Manager) StopSession(sessionID string) {
	m.mu.Lock()
	worker := m.workers[sessionID]
	delete(m.workers, sessionID)
	m.mu.Unlock()

	if worker != nil {
		worker.Shutdown()
		if m.metrics != nil {
			m.metrics.SessionsActive.Dec()
		}
	}
}

// StopSessionsForConnection shuts down every worker whose profile matches
// the given connection id.
func (m *Manager) StopSessionsForConnection(profileID string) {
	m.mu.Lock()
	var stopped []*Worker
	for sid, w := range m.workers {
		if w.cfg.Profile.ID == profileID {
			stopped = append(stopped, w)
			delete(m.workers, sid)
		}
	}
	m.mu.Unlock()

	for _, w := range stopped {
		w.Shutdown()
		if m.metrics != nil {
			m.metrics.SessionsActive.Dec()
		}
	}
}

// StartRequest pairs a session with its profile for batched startup.
type StartRequest struct {
	Session    Session
	Profile    *transport.ConnectionProfile
	Cols, Rows int
	Callbacks  Callbacks
}

// StartBatch creates all requested sessions, then connects them on a
// background scheduler with cumulative jittered spacing between starts.
// Returned workers are in request order; creation failures leave a nil
// slot and are logged.
func (m *Manager) StartBatch(requests []StartRequest) []*Worker {
	workers := make([]*Worker, len(requests))
	for i, req := range requests {
		w, err := m.CreateSession(req.Session, req.Profile, req.Cols, req.Rows)
		if err != nil {
			m.log.Warn("batch session rejected",
				zap.String("session", req.Session.ID),
				zap.Error(err))
			continue
		}
		w.SetCallbacks(req.Callbacks)
		workers[i] = w
	}

	go func() {
		for _, w := range workers {
			if w == nil {
				continue
			}
			time.Sleep(m.cfg.StartupSpacing + time.Duration(rand.Int63n(int64(m.cfg.StartupJitter))))
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			w.ConnectAsync()
		}
	}()
	return workers
}

// Shutdown is ordered: refuse new work, shut down every worker, then drop
// the registry. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	for _, w := range workers {
		w.Shutdown()
	}
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(0)
	}
	m.log.Info("manager shut down", zap.Int("sessions", len(workers)))
}
