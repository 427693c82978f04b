package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shellgrid/shellgrid/internal/infrastructure/monitoring"
	"github.com/shellgrid/shellgrid/internal/logging"
	"github.com/shellgrid/shellgrid/internal/shared/id"
	"github.com/shellgrid/shellgrid/internal/transport"
)

var (
	// ErrShutdown is returned by operations on a worker after Shutdown.
	ErrShutdown = errors.New("worker is shut down")
	// ErrNotConnected is returned by Send while no channel is open.
	ErrNotConnected = errors.New("not connected")
)

// Callbacks are the worker's consumer-facing side effects. They run on the
// worker's reader/supervisor goroutines; panics are recovered and logged,
// never propagated past the worker boundary. Attach callbacks before the
// first connect; they must not be swapped while the worker runs.
type Callbacks struct {
	OnData         func(chunk []byte)
	OnStateChanged func(state State)
}

// Config assembles one worker's collaborators and tuning.
type Config struct {
	SessionID   string
	SessionName string
	Profile     *transport.ConnectionProfile
	Dialer      transport.Dialer

	Cols, Rows int

	ConnectTimeout  time.Duration
	Backoff         Backoff
	ReadChunkSize   int
	ErrorHistoryCap int
	RateWindow      time.Duration

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Worker owns one transport session's lifecycle: connect, stream, detect
// loss, and supervise reconnection with bounded exponential backoff.
type Worker struct {
	id        id.WorkerID
	cfg       Config
	log       *logging.Logger
	callbacks Callbacks

	mu          sync.Mutex
	state       State
	conn        transport.Conn
	cols, rows  int
	attempts    int
	nextRetry   time.Time
	supervising bool
	lossPending bool
	down        bool
	downCh      chan struct{}

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64

	errs *errorHistory
	rate *rateWindow
}

// NewWorker builds a worker in the Disconnected state. Nothing connects
// until Connect or ConnectAsync is called.
func NewWorker(cfg Config) *Worker {
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = 8192
	}
	if cfg.ErrorHistoryCap <= 0 {
		cfg.ErrorHistoryCap = 50
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}

	return &Worker{
		id:     id.NewWorkerID(),
		cfg:    cfg,
		log:    log.With(zap.String("session", cfg.SessionID)),
		cols:   cfg.Cols,
		rows:   cfg.Rows,
		downCh: make(chan struct{}),
		errs:   newErrorHistory(cfg.ErrorHistoryCap),
		rate:   newRateWindow(cfg.RateWindow),
	}
}

// SetCallbacks attaches the consumer hooks. Call before connecting.
func (w *Worker) SetCallbacks(cb Callbacks) {
	w.callbacks = cb
}

// ID returns the worker instance id.
func (w *Worker) ID() id.WorkerID {
	return w.id
}

// SessionID returns the owning session's id.
func (w *Worker) SessionID() string {
	return w.cfg.SessionID
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Attempts returns the consecutive failed reconnect attempts. It resets to
// zero only on a successful connect.
func (w *Worker) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// NextRetry returns when the supervisor will try again; zero when no retry
// is pending.
func (w *Worker) NextRetry() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextRetry
}

// BytesSent returns total bytes written to the remote shell.
func (w *Worker) BytesSent() int64 {
	return w.bytesSent.Load()
}

// BytesReceived returns total bytes read from the remote shell.
func (w *Worker) BytesReceived() int64 {
	return w.bytesReceived.Load()
}

// RecentDataRate returns inbound bytes/second over the trailing window,
// pruning stale samples lazily on each call.
func (w *Worker) RecentDataRate() float64 {
	return w.rate.rate()
}

// Errors returns the bounded error history, oldest first.
func (w *Worker) Errors() []ErrorRecord {
	return w.errs.snapshot()
}

// LastError returns the most recent error record, if any.
func (w *Worker) LastError() (ErrorRecord, bool) {
	return w.errs.last()
}

// Connect establishes the session synchronously: key load, transport
// connect, host-key verification, authentication, and PTY channel open.
// On success it transitions to Connected and starts the reader loop; on
// any failure it transitions to Disconnected and returns the chained
// error. Connect never retries by itself.
func (w *Worker) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.down {
		w.mu.Unlock()
		return ErrShutdown
	}
	if w.state == StateConnected {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.setState(StateConnecting)
	if err := w.connectOnce(ctx, PhaseConnect); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("session %s: %w", w.cfg.SessionID, err)
	}
	w.setState(StateConnected)
	w.runInitialCommand()
	return nil
}

// ConnectAsync runs Connect off the caller's goroutine and hands failures
// straight to the reconnection supervisor.
func (w *Worker) ConnectAsync() {
	go func() {
		err := w.Connect(context.Background())
		if err == nil || errors.Is(err, ErrShutdown) {
			return
		}
		w.ReconnectWithBackoff()
	}()
}

// connectOnce dials and installs a new channel without any state
// transitions; Connect and the supervisor wrap it with their own.
func (w *Worker) connectOnce(ctx context.Context, phase Phase) error {
	w.mu.Lock()
	cols, rows := w.cols, w.rows
	w.mu.Unlock()

	dctx := ctx
	if w.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, w.cfg.ConnectTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := w.cfg.Dialer.Dial(dctx, w.cfg.Profile, cols, rows)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveConnect(start, err)
	}
	if err != nil {
		w.errs.record(phase, err)
		return err
	}

	w.mu.Lock()
	if w.down {
		w.mu.Unlock()
		conn.Close()
		return ErrShutdown
	}
	if w.conn != nil {
		w.conn.Close()
	}
	w.conn = conn
	w.attempts = 0
	w.nextRetry = time.Time{}
	w.mu.Unlock()

	go w.readLoop(conn)
	if ka := w.cfg.Profile.KeepAlive; ka > 0 {
		go w.keepAliveLoop(conn, ka)
	}
	w.log.Info("connected",
		zap.String("worker", string(w.id)),
		zap.String("host", w.cfg.Profile.Host))
	return nil
}

// Send writes to the remote shell. A write failure is treated as
// connection loss and wakes the supervisor.
func (w *Worker) Send(data []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	n, err := conn.Write(data)
	if n > 0 {
		w.bytesSent.Add(int64(n))
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.BytesSent.WithLabelValues(w.cfg.SessionID).Add(float64(n))
		}
	}
	if err != nil {
		w.handleLoss(conn, fmt.Errorf("send: %w", err), PhaseSend)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Resize records the new size for future connects and pushes a window
// change to the live PTY. Best effort; transport errors are swallowed.
func (w *Worker) Resize(cols, rows int) {
	if cols < 1 || rows < 1 {
		return
	}
	w.mu.Lock()
	w.cols, w.rows = cols, rows
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		if err := conn.Resize(cols, rows); err != nil {
			w.log.Debug("resize signal failed", zap.Error(err))
		}
	}
}

// ReconnectWithBackoff starts the reconnection supervisor if it is not
// already running. Idempotent; a no-op after Shutdown.
func (w *Worker) ReconnectWithBackoff() {
	w.mu.Lock()
	if w.down {
		w.mu.Unlock()
		return
	}
	if w.supervising {
		// A loss raced the running supervisor's success tail. Leave a
		// note so its cleanup restarts the loop instead of dropping the
		// wake-up and stranding the worker in Disconnected.
		w.lossPending = true
		w.mu.Unlock()
		return
	}
	w.supervising = true
	w.lossPending = false
	w.mu.Unlock()

	w.setState(StateReconnecting)
	go w.supervise()
}

// supervise retries forever until success or shutdown. Each iteration
// waits the jittered backoff delay, tears down any stale channel, and
// dials again. Failure classification is deliberately uniform: a bad key
// retries exactly like a network blip.
func (w *Worker) supervise() {
	defer func() {
		w.mu.Lock()
		w.supervising = false
		restart := w.lossPending && !w.down
		w.lossPending = false
		w.mu.Unlock()
		if restart {
			w.ReconnectWithBackoff()
		}
	}()

	for {
		w.mu.Lock()
		if w.down {
			w.mu.Unlock()
			return
		}
		attempt := w.attempts
		delay := w.cfg.Backoff.Delay(attempt)
		w.nextRetry = time.Now().Add(delay)
		downCh := w.downCh
		w.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-downCh:
			timer.Stop()
			return
		}

		w.teardownConn()
		err := w.connectOnce(context.Background(), PhaseReconnect)
		if err == nil {
			w.setState(StateConnected)
			w.log.Info("reconnected", zap.Int("after_attempts", attempt+1))
			w.runInitialCommand()
			return
		}
		if errors.Is(err, ErrShutdown) {
			return
		}

		w.mu.Lock()
		w.attempts++
		w.mu.Unlock()
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.ReconnectAttempts.Inc()
		}
		w.log.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
}

// Disconnect tears down the channel and stops the reader, transitioning to
// Disconnected. It does not schedule a reconnect.
func (w *Worker) Disconnect() {
	w.teardownConn()
	w.setState(StateDisconnected)
}

func (w *Worker) teardownConn() {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Shutdown permanently stops the worker: it disables all future
// reconnection, interrupts any in-flight backoff sleep, and closes the
// channel. Idempotent; the final transition to Disconnected is the last
// one the worker will ever make.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if w.down {
		w.mu.Unlock()
		return
	}
	w.down = true
	close(w.downCh)
	conn := w.conn
	w.conn = nil
	wasDisconnected := w.state == StateDisconnected
	w.state = StateDisconnected
	w.nextRetry = time.Time{}
	w.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if !wasDisconnected {
		w.emitState(StateDisconnected)
	}
	w.log.Info("worker shut down", zap.String("worker", string(w.id)))
}

// readLoop reads fixed-size chunks until EOF or error, then hands off to
// the reconnection supervisor. It never recurses into reconnection on its
// own stack.
func (w *Worker) readLoop(conn transport.Conn) {
	buf := make([]byte, w.cfg.ReadChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			w.bytesReceived.Add(int64(n))
			w.rate.add(n)
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.BytesReceived.WithLabelValues(w.cfg.SessionID).Add(float64(n))
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			w.emitData(chunk)
		}
		if err != nil {
			w.handleLoss(conn, fmt.Errorf("read: %w", err), PhaseRead)
			return
		}
	}
}

func (w *Worker) keepAliveLoop(conn transport.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.downCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			stale := w.conn != conn
			w.mu.Unlock()
			if stale {
				return
			}
			if err := conn.KeepAlive(); err != nil {
				w.handleLoss(conn, fmt.Errorf("keepalive: %w", err), PhaseKeepAlive)
				return
			}
		}
	}
}

// handleLoss reacts to an abnormal channel failure: if the given conn is
// still the live one, tear it down, record the cause, and wake the
// supervisor. Stale conns (already replaced or explicitly disconnected)
// are ignored, so an orderly Disconnect never triggers a reconnect.
func (w *Worker) handleLoss(conn transport.Conn, cause error, phase Phase) {
	w.mu.Lock()
	if w.down || w.conn != conn {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	w.mu.Unlock()

	conn.Close()
	w.errs.record(phase, cause)
	w.log.Warn("connection lost", zap.Error(cause))
	w.setState(StateDisconnected)
	w.ReconnectWithBackoff()
}

// runInitialCommand sends the profile's initial command, with %UUID% and
// %NAME% substituted, once per successful connect.
func (w *Worker) runInitialCommand() {
	cmd := strings.TrimSpace(w.cfg.Profile.InitialCommand)
	if cmd == "" {
		return
	}
	cmd = strings.ReplaceAll(cmd, "%UUID%", w.cfg.SessionID)
	cmd = strings.ReplaceAll(cmd, "%NAME%", w.cfg.SessionName)
	if err := w.Send([]byte(cmd + "\n")); err != nil {
		w.log.Warn("initial command failed", zap.Error(err))
	}
}

// setState applies a transition and notifies the consumer. Transitions are
// suppressed after Shutdown, which performs its own final one.
func (w *Worker) setState(s State) {
	w.mu.Lock()
	if w.down || w.state == s {
		w.mu.Unlock()
		return
	}
	w.state = s
	w.mu.Unlock()
	w.emitState(s)
}

func (w *Worker) emitState(s State) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("state callback panicked", zap.Any("panic", r))
		}
	}()
	if cb := w.callbacks.OnStateChanged; cb != nil {
		cb(s)
	}
}

func (w *Worker) emitData(chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("data callback panicked", zap.Any("panic", r))
		}
	}()
	if cb := w.callbacks.OnData; cb != nil {
		cb(chunk)
	}
}
