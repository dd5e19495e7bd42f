package connection

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/tasksync/internal/notify"
	"github.com/taskflow/tasksync/internal/protocol"
)

// wsPath is where the backend mounts the sync channel. The token rides in
// the path because the browser counterpart of this protocol cannot set
// custom headers.
const wsPath = "/api/v1/ws/"

// event is a transport callback or command fed into the manager's single
// event loop.
type event interface{ isEvent() }

type connectEvent struct {
	// manual connects reset the attempt counter and the terminal latch;
	// backoff-driven connects do not.
	manual bool
}
type disconnectEvent struct{}
type dialDone struct {
	gen    uint64
	client Client
	err    error
}
type frameEvent struct {
	gen  uint64
	data []byte
}
type errorEvent struct {
	gen uint64
	err error
}
type closedEvent struct {
	gen  uint64
	info CloseInfo
}

func (connectEvent) isEvent()    {}
func (disconnectEvent) isEvent() {}
func (dialDone) isEvent()        {}
func (frameEvent) isEvent()      {}
func (errorEvent) isEvent()      {}
func (closedEvent) isEvent()     {}

// Manager owns the single transport session and its lifecycle. All other
// components reach the wire through SendMessage and the Messages/States
// channels, never through the transport handle directly.
type Manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	newClient NewClientFunc

	notices  notify.Notifier // rate-limited transient transport notices
	terminal notify.Notifier // one-shot "connection lost" signal

	events   chan event
	messages chan protocol.Envelope
	stateCh  chan State

	state atomic.Int32

	clientMu sync.RWMutex
	client   Client

	// Loop-owned state. Touched only by the run goroutine.
	ctx           context.Context
	gen           uint64
	attempts      int
	terminalFired bool
	initialC      <-chan time.Time
	hbTicker      *time.Ticker
	hbC           <-chan time.Time
	reconTimer    *time.Timer
	reconC        <-chan time.Time

	statsMu sync.Mutex
	stats   ManagerStats

	startOnce sync.Once
	done      chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier sets the notifier used for transport notices and the
// terminal connection-lost signal.
func WithNotifier(n notify.Notifier) ManagerOption {
	return func(m *Manager) {
		m.terminal = n
		m.notices = n
	}
}

// WithClientFactory overrides the transport constructor. Used by tests to
// drive the state machine without a live socket.
func WithClientFactory(f NewClientFunc) ManagerOption {
	return func(m *Manager) {
		m.newClient = f
	}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBuffer < 1 {
		cfg.MessageBuffer = 256
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		terminal:  notify.Discard,
		notices:   notify.Discard,
		events:    make(chan event, 64),
		messages:  make(chan protocol.Envelope, cfg.MessageBuffer),
		stateCh:   make(chan State, 32),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if cfg.TransportNoticeInterval > 0 {
		m.notices = notify.NewLimiter(m.notices, cfg.TransportNoticeInterval)
	}

	return m
}

// Start launches the event loop. When a token is configured the first
// connect is scheduled after InitialConnectDelay, to avoid a connection
// storm right after sign-in.
func (m *Manager) Start(ctx context.Context) error {
	started := false
	m.startOnce.Do(func() {
		started = true
		go m.run(ctx)
	})
	if !started {
		return ErrAlreadyStarted
	}
	return nil
}

// Connect requests a connection. Idempotent: a no-op while Connecting or
// Connected. Resets the reconnect episode.
func (m *Manager) Connect() {
	m.enqueue(connectEvent{manual: true})
}

// Disconnect tears the session down with a normal close. Terminal: it never
// schedules a reconnect.
func (m *Manager) Disconnect() {
	m.enqueue(disconnectEvent{})
}

// SendMessage transmits an envelope of the given type. Returns true only if
// the message was handed to a connected transport; otherwise the message is
// dropped. There is no queueing: local optimistic state is favored over
// guaranteed delivery.
func (m *Manager) SendMessage(msgType string, data map[string]any) bool {
	if m.State() != StateConnected {
		return false
	}

	m.clientMu.RLock()
	c := m.client
	m.clientMu.RUnlock()
	if c == nil {
		return false
	}

	raw, err := protocol.New(msgType, data).Encode()
	if err != nil {
		m.logger.Warn("failed to encode message", "type", msgType, "error", err)
		return false
	}
	if err := c.Send(raw); err != nil {
		m.logger.Debug("send failed", "type", msgType, "error", err)
		return false
	}
	return true
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Messages returns decoded inbound envelopes for the Message Router.
func (m *Manager) Messages() <-chan protocol.Envelope {
	return m.messages
}

// States returns a feed of state transitions.
func (m *Manager) States() <-chan State {
	return m.stateCh
}

// Stats returns a snapshot of the manager's internals.
func (m *Manager) Stats() ManagerStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// run is the single event loop. Every timer body re-checks current state
// here because events and timers interleave freely.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	m.ctx = ctx

	if m.cfg.Token != "" {
		if m.cfg.InitialConnectDelay > 0 {
			t := time.NewTimer(m.cfg.InitialConnectDelay)
			defer t.Stop()
			m.initialC = t.C
		} else {
			m.handleConnect(connectEvent{})
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.handleDisconnect()
			return

		case <-m.initialC:
			m.initialC = nil
			if m.State() == StateDisconnected {
				m.handleConnect(connectEvent{})
			}

		case ev := <-m.events:
			m.handleEvent(ev)

		case <-m.hbC:
			// Re-check: a close may have raced the tick.
			if m.State() == StateConnected {
				m.SendMessage(protocol.TypePing, nil)
			}

		case <-m.reconC:
			m.reconTimer = nil
			m.reconC = nil
			m.updateStats()
			if m.State() == StateDisconnected {
				m.handleConnect(connectEvent{})
			}
		}
	}
}

func (m *Manager) handleEvent(ev event) {
	switch e := ev.(type) {
	case connectEvent:
		if e.manual {
			m.attempts = 0
			m.terminalFired = false
			m.initialC = nil
			m.cancelReconnect()
		}
		m.handleConnect(e)
	case disconnectEvent:
		m.handleDisconnect()
	case dialDone:
		m.handleDialDone(e)
	case frameEvent:
		m.handleFrame(e)
	case errorEvent:
		m.handleError(e)
	case closedEvent:
		m.handleClosed(e)
	}
}

func (m *Manager) handleConnect(connectEvent) {
	switch m.State() {
	case StateConnecting, StateConnected:
		return
	}
	if m.cfg.Token == "" {
		m.logger.Warn("connect requested without a session token")
		return
	}

	m.gen++
	gen := m.gen
	m.setState(StateConnecting)

	sessionID := uuid.NewString()
	cfg := DefaultClientConfig()
	cfg.URL = m.sessionURL()
	if m.cfg.WriteTimeout > 0 {
		cfg.WriteTimeout = m.cfg.WriteTimeout
	}

	c := m.newClient(cfg, m.logger.With("session_id", sessionID))
	m.logger.Info("connecting", "session_id", sessionID, "attempt", m.attempts)

	go func() {
		err := c.Connect(m.ctx)
		m.enqueue(dialDone{gen: gen, client: c, err: err})
	}()
}

func (m *Manager) handleDialDone(e dialDone) {
	if e.gen != m.gen {
		// A disconnect superseded this dial.
		if e.err == nil {
			e.client.Close(CloseNormalClosure)
		}
		return
	}

	if e.err != nil {
		m.logger.Warn("connection failed", "error", e.err)
		m.setState(StateDisconnected)
		// A failed dial carries no close code; treat it as a retryable
		// close so backoff governs the retry cadence.
		m.applyClosePolicy(0)
		return
	}

	m.clientMu.Lock()
	m.client = e.client
	m.clientMu.Unlock()

	m.attempts = 0
	m.terminalFired = false
	m.startHeartbeat()
	m.setState(StateConnected)
	m.logger.Info("connected")

	go m.pump(e.gen, e.client)
}

func (m *Manager) handleFrame(e frameEvent) {
	if e.gen != m.gen {
		return
	}

	env, err := protocol.Decode(e.data)
	if err != nil {
		// Malformed frames are dropped without touching any other state.
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	select {
	case m.messages <- env:
	default:
		m.logger.Warn("message buffer full, dropping", "type", env.Type)
	}
}

func (m *Manager) handleError(e errorEvent) {
	if e.gen != m.gen {
		return
	}

	m.logger.Warn("transport error", "error", e.err)
	m.setState(StateError)
	m.notices.Notify(notify.Notification{
		Key:   "transport_error",
		Level: notify.LevelWarn,
		Title: "Connection problem",
		Body:  "The realtime connection hit an error. Reconnecting in the background.",
	})
	// Reconnection is decided on close, which always follows.
}

func (m *Manager) handleClosed(e closedEvent) {
	if e.gen != m.gen {
		return
	}

	m.clientMu.Lock()
	m.client = nil
	m.clientMu.Unlock()

	m.stopHeartbeat()
	m.setState(StateDisconnected)
	m.logger.Info("connection closed", "code", e.info.Code, "error", e.info.Err)

	m.applyClosePolicy(e.info.Code)
}

func (m *Manager) handleDisconnect() {
	m.initialC = nil
	m.cancelReconnect()
	m.stopHeartbeat()
	m.attempts = 0
	m.terminalFired = false
	m.gen++ // invalidate in-flight dials and events from the old session

	m.clientMu.Lock()
	c := m.client
	m.client = nil
	m.clientMu.Unlock()

	if c != nil {
		c.Close(CloseNormalClosure)
	}

	m.setState(StateDisconnected)
}

// applyClosePolicy decides what happens after a close: schedule a backoff
// reconnect, or end the episode with at most one terminal warning.
func (m *Manager) applyClosePolicy(code int) {
	if !m.cfg.AutoReconnect {
		return
	}
	if !retryableClose(code) {
		m.logger.Info("close code is not retryable, staying disconnected", "code", code)
		return
	}

	if m.attempts < m.cfg.MaxReconnectAttempts {
		m.attempts++
		delay := backoffDelay(m.attempts, m.cfg.ReconnectInterval, m.cfg.BackoffCap)
		m.logger.Info("scheduling reconnect",
			"attempt", m.attempts,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", delay,
		)
		m.reconTimer = time.NewTimer(delay)
		m.reconC = m.reconTimer.C
		m.updateStats()
		return
	}

	if !m.terminalFired {
		m.terminalFired = true
		m.logger.Error("reconnect attempts exhausted", "attempts", m.attempts)
		m.terminal.Notify(notify.Notification{
			Key:   "connection_lost",
			Level: notify.LevelError,
			Title: "Connection lost",
			Body:  "Real-time updates are unavailable. Refresh the page to reconnect.",
		})
	}
	m.updateStats()
}

// pump forwards one client's channels into the event loop, tagged with the
// session generation so stale sessions cannot mutate current state.
func (m *Manager) pump(gen uint64, c Client) {
	frames := c.Frames()
	errs := c.Errors()
	for {
		select {
		case data := <-frames:
			m.enqueue(frameEvent{gen: gen, data: data})
		case err := <-errs:
			m.enqueue(errorEvent{gen: gen, err: err})
		case info := <-c.Closed():
			m.enqueue(closedEvent{gen: gen, info: info})
			return
		}
	}
}

func (m *Manager) enqueue(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) setState(s State) {
	if m.State() == s {
		return
	}
	m.state.Store(int32(s))
	m.updateStats()

	select {
	case m.stateCh <- s:
	default:
		m.logger.Warn("state channel full, dropping transition", "state", s)
	}
}

func (m *Manager) startHeartbeat() {
	m.stopHeartbeat()
	m.hbTicker = time.NewTicker(m.cfg.HeartbeatInterval)
	m.hbC = m.hbTicker.C
	m.updateStats()
}

func (m *Manager) stopHeartbeat() {
	if m.hbTicker != nil {
		m.hbTicker.Stop()
		m.hbTicker = nil
		m.hbC = nil
	}
	m.updateStats()
}

func (m *Manager) cancelReconnect() {
	if m.reconTimer != nil {
		m.reconTimer.Stop()
		m.reconTimer = nil
		m.reconC = nil
	}
	m.updateStats()
}

func (m *Manager) updateStats() {
	m.statsMu.Lock()
	m.stats = ManagerStats{
		State:              m.State(),
		ReconnectAttempts:  m.attempts,
		HeartbeatActive:    m.hbC != nil,
		ReconnectScheduled: m.reconC != nil,
		TerminalFired:      m.terminalFired,
	}
	m.statsMu.Unlock()
}

func (m *Manager) sessionURL() string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + wsPath + m.cfg.Token
}
