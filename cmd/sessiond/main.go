package main

import (
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shellgrid/shellgrid/internal/infrastructure/config"
	"github.com/shellgrid/shellgrid/internal/infrastructure/monitoring"
	"github.com/shellgrid/shellgrid/internal/logging"
	"github.com/shellgrid/shellgrid/internal/session"
	"github.com/shellgrid/shellgrid/internal/terminal"
)

func main() {
	manifestPath := flag.String("manifest", "sessions.yaml", "session manifest path")
	flag.Parse()

	cfg := config.LoadOrDefault()
	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer log.Sync()

	metrics := monitoring.NewMetrics(nil)
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		log.Fatal("load manifest", zap.Error(err))
	}

	mgr := session.NewManager(session.ManagerConfig{
		ConnectTimeout:  cfg.Session.ConnectTimeout,
		Backoff:         session.Backoff{Base: cfg.Session.BackoffBase, Cap: cfg.Session.BackoffCap},
		ReadChunkSize:   cfg.Session.ReadChunkSize,
		ErrorHistoryCap: cfg.Session.ErrorHistoryCap,
		RateWindow:      cfg.Session.RateWindow,
		StartupSpacing:  cfg.Session.StartupSpacing,
		StartupJitter:   cfg.Session.StartupJitter,
		Logger:          log,
		Metrics:         metrics,
	})

	var requests []session.StartRequest
	var runtimes []*sessionRuntime
	for _, s := range manifest.Sessions {
		profile, err := manifest.profile(s.Profile)
		if err != nil {
			log.Warn("skipping session", zap.String("session", s.ID), zap.Error(err))
			continue
		}
		rt := newSessionRuntime(s.Name, cfg.Terminal, log.With(zap.String("session", s.ID)))
		requests = append(requests, session.StartRequest{
			Session:   session.Session{ID: s.ID, Name: s.Name, ProfileID: profile.ID},
			Profile:   profile,
			Cols:      cfg.Terminal.Cols,
			Rows:      cfg.Terminal.Rows,
			Callbacks: rt.callbacks(),
		})
		runtimes = append(runtimes, rt)
	}

	workers := mgr.StartBatch(requests)
	for i, w := range workers {
		if w != nil {
			runtimes[i].attach(w)
		}
	}
	log.Info("sessiond started", zap.Int("sessions", len(requests)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	mgr.Shutdown()
}

// sessionRuntime wires one worker's byte stream into its terminal engine.
// The parser and buffer are single-writer: only the worker's reader
// goroutine touches them. State changes arrive on other goroutines, so a
// reconnect only flags the reset; the data path consumes the flag before
// parsing the fresh connection's first bytes.
type sessionRuntime struct {
	log    *logging.Logger
	buf    *terminal.ScreenBuffer
	parser *terminal.Parser

	resetPending atomic.Bool

	mu     sync.Mutex
	worker *session.Worker
}

func newSessionRuntime(name string, termCfg config.TerminalConfig, log *logging.Logger) *sessionRuntime {
	rt := &sessionRuntime{log: log}
	rt.buf = terminal.NewScreenBuffer(termCfg.Cols, termCfg.Rows, termCfg.ScrollbackCap)
	rt.parser = terminal.NewParser(rt.buf, terminal.Hooks{
		OnBell: func() {
			log.Debug("bell", zap.String("name", name))
		},
		OnTitle: func(title string) {
			log.Info("title changed", zap.String("title", title))
		},
		OnResponse: rt.respond,
	})
	return rt
}

func (rt *sessionRuntime) callbacks() session.Callbacks {
	return session.Callbacks{
		OnData: func(chunk []byte) {
			if rt.resetPending.Swap(false) {
				// A stream that died mid-sequence must not bleed into
				// the fresh connection's output.
				rt.parser.Reset()
			}
			rt.parser.Parse(chunk)
		},
		OnStateChanged: func(s session.State) {
			rt.log.Info("state changed", zap.Stringer("state", s))
			if s == session.StateConnected {
				rt.resetPending.Store(true)
			}
		},
	}
}

func (rt *sessionRuntime) attach(w *session.Worker) {
	rt.mu.Lock()
	rt.worker = w
	rt.mu.Unlock()
}

// respond routes terminal query answers (device status, attributes) back
// to the remote side.
func (rt *sessionRuntime) respond(payload string) {
	rt.mu.Lock()
	w := rt.worker
	rt.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Send([]byte(payload)); err != nil {
		rt.log.Debug("status response dropped", zap.Error(err))
	}
}
