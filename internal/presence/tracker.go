package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/tasksync/internal/connection"
	"github.com/taskflow/tasksync/internal/protocol"
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Entry is one user in the presence roster.
type Entry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

// Sender sends messages over the active connection. Sends are best effort;
// a false return means the message was skipped, which is harmless for
// presence traffic.
type Sender interface {
	SendMessage(msgType string, data map[string]any) bool
}

// RosterSource seeds the initial roster, typically from a REST endpoint.
type RosterSource interface {
	OnlineUsers(ctx context.Context, projectID string) ([]Entry, error)
}

// ActivitySource supplies user interaction signals (pointer, keyboard,
// and the like). The Tracker treats every signal identically.
type ActivitySource interface {
	Signals() <-chan struct{}
}

// Config controls the Tracker.
type Config struct {
	// LocalUserID identifies the signed-in user in outbound broadcasts.
	LocalUserID string

	// ProjectID scopes broadcasts and the project subscription. Empty
	// means unscoped.
	ProjectID string

	// HeartbeatInterval is how often the local status is re-broadcast
	// while connected. Independent of the transport ping.
	HeartbeatInterval time.Duration

	// AwayTimeout is how long without an interaction signal before the
	// local user is demoted to away.
	AwayTimeout time.Duration
}

// DefaultConfig returns the standard presence configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		AwayTimeout:       5 * time.Minute,
	}
}

// Stats is a point-in-time snapshot of tracker counters.
type Stats struct {
	Broadcasts      int64
	SkippedSends    int64
	AwayTransitions int64
	RosterSize      int
}

// Tracker owns local presence and the remote roster.
//
// All timers and local status live on a single run goroutine; the roster
// is mutex guarded because the router delivers events from its own
// goroutine.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
	sender Sender
	source ActivitySource

	states <-chan connection.State
	sigC   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	roster      map[string]Entry
	localStatus Status
	stats       Stats
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithActivitySource attaches an interaction signal source. Signals from
// the source are merged with those delivered via Signal.
func WithActivitySource(src ActivitySource) TrackerOption {
	return func(t *Tracker) { t.source = src }
}

// NewTracker creates a new presence tracker. The states channel feeds
// connection transitions from the connection manager.
func NewTracker(cfg Config, sender Sender, states <-chan connection.State, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.AwayTimeout <= 0 {
		cfg.AwayTimeout = 5 * time.Minute
	}

	t := &Tracker{
		cfg:         cfg,
		logger:      logger,
		sender:      sender,
		states:      states,
		sigC:        make(chan struct{}, 8),
		roster:      make(map[string]Entry),
		localStatus: StatusOffline,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the tracker loop.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.run()

	t.logger.Info("presence tracker started",
		"heartbeat", t.cfg.HeartbeatInterval,
		"away_timeout", t.cfg.AwayTimeout,
		"project_id", t.cfg.ProjectID)
	return nil
}

// Stop shuts the tracker down. A best-effort offline broadcast is sent
// before the loop exits.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("presence tracker stopped")
	case <-ctx.Done():
		t.logger.Warn("presence tracker stop timed out")
	}
	return nil
}

// Signal records a user interaction. Safe to call from any goroutine;
// bursts collapse into a single pending signal.
func (t *Tracker) Signal() {
	select {
	case t.sigC <- struct{}{}:
	default:
	}
}

// HandlePresence applies an inbound presence event to the roster.
func (t *Tracker) HandlePresence(env protocol.Envelope) {
	userID := env.String("user_id")
	if userID == "" || userID == t.cfg.LocalUserID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch env.Type {
	case protocol.TypeUserOnline:
		entry := t.roster[userID]
		entry.UserID = userID
		entry.Status = StatusOnline
		entry.LastSeen = time.Now().UTC()
		if name := env.String("user_name"); name != "" {
			entry.DisplayName = name
		}
		t.roster[userID] = entry

	case protocol.TypeUserAway:
		entry, ok := t.roster[userID]
		if !ok {
			entry = Entry{UserID: userID}
		}
		entry.Status = StatusAway
		entry.LastSeen = time.Now().UTC()
		if name := env.String("user_name"); name != "" {
			entry.DisplayName = name
		}
		t.roster[userID] = entry

	case protocol.TypeUserOffline:
		delete(t.roster, userID)
	}
}

// Bootstrap seeds the roster from src. Entries merge into the same map
// that inbound events mutate; offline entries are skipped.
func (t *Tracker) Bootstrap(ctx context.Context, src RosterSource) error {
	entries, err := src.OnlineUsers(ctx, t.cfg.ProjectID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range entries {
		if entry.UserID == "" || entry.UserID == t.cfg.LocalUserID {
			continue
		}
		if entry.Status == StatusOffline {
			continue
		}
		if entry.Status == "" {
			entry.Status = StatusOnline
		}
		t.roster[entry.UserID] = entry
	}

	t.logger.Info("presence roster bootstrapped", "users", len(entries))
	return nil
}

// Status returns a user's presence. Absence from the roster is offline.
func (t *Tracker) Status(userID string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if entry, ok := t.roster[userID]; ok {
		return entry.Status
	}
	return StatusOffline
}

// LocalStatus returns the status currently broadcast for the local user.
func (t *Tracker) LocalStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.localStatus
}

// Roster returns a snapshot of the roster sorted by user id.
func (t *Tracker) Roster() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.roster))
	for _, entry := range t.roster {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Stats returns current counters.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.stats
	s.RosterSize = len(t.roster)
	return s
}

// run is the tracker loop. It owns the heartbeat ticker, the inactivity
// watchdog, and the connected flag.
func (t *Tracker) run() {
	defer t.wg.Done()

	connected := false

	hbTicker := time.NewTicker(t.cfg.HeartbeatInterval)
	hbTicker.Stop()
	hbActive := false

	awayTimer := time.NewTimer(t.cfg.AwayTimeout)
	stopTimer(awayTimer)

	defer func() {
		hbTicker.Stop()
		stopTimer(awayTimer)
		if connected {
			// Best effort; the connection may already be gone.
			if t.cfg.ProjectID != "" {
				t.sender.SendMessage(protocol.TypeUnsubscribeProject, map[string]any{
					"project_id": t.cfg.ProjectID,
				})
			}
			t.broadcast(StatusOffline)
		}
	}()

	var srcC <-chan struct{}
	if t.source != nil {
		srcC = t.source.Signals()
	}

	for {
		select {
		case <-t.ctx.Done():
			return

		case state, ok := <-t.states:
			if !ok {
				return
			}
			switch state {
			case connection.StateConnected:
				connected = true
				t.setLocal(StatusOnline)
				if t.cfg.ProjectID != "" {
					t.sender.SendMessage(protocol.TypeSubscribeProject, map[string]any{
						"project_id": t.cfg.ProjectID,
					})
				}
				t.broadcast(StatusOnline)
				hbTicker.Reset(t.cfg.HeartbeatInterval)
				hbActive = true
				resetTimer(awayTimer, t.cfg.AwayTimeout)

			case connection.StateDisconnected, connection.StateError:
				if connected {
					connected = false
					hbTicker.Stop()
					hbActive = false
				}
			}

		case <-hbTicker.C:
			// The ticker may fire once after a disconnect; re-check.
			if connected && hbActive {
				t.broadcast(t.LocalStatus())
			}

		case <-awayTimer.C:
			// Fires once per quiet period; only the next signal rearms it.
			if t.LocalStatus() == StatusOnline {
				t.setLocal(StatusAway)
				t.countAway()
				if connected {
					t.broadcast(StatusAway)
				}
			}

		case <-t.sigC:
			t.onSignal(connected, awayTimer)

		case <-srcC:
			t.onSignal(connected, awayTimer)
		}
	}
}

func (t *Tracker) onSignal(connected bool, awayTimer *time.Timer) {
	if t.LocalStatus() == StatusAway {
		t.setLocal(StatusOnline)
		if connected {
			t.broadcast(StatusOnline)
		}
	}
	resetTimer(awayTimer, t.cfg.AwayTimeout)
}

// broadcast sends the local user's status over the connection.
func (t *Tracker) broadcast(status Status) {
	data := map[string]any{
		"user_id": t.cfg.LocalUserID,
		"status":  string(status),
	}
	if t.cfg.ProjectID != "" {
		data["project_id"] = t.cfg.ProjectID
	}

	if t.sender.SendMessage(protocol.TypeUserStatus, data) {
		t.count(func(s *Stats) { s.Broadcasts++ })
		t.logger.Debug("presence broadcast", "status", status)
	} else {
		t.count(func(s *Stats) { s.SkippedSends++ })
		t.logger.Debug("presence broadcast skipped", "status", status)
	}
}

func (t *Tracker) setLocal(status Status) {
	t.mu.Lock()
	t.localStatus = status
	t.mu.Unlock()
}

func (t *Tracker) countAway() {
	t.count(func(s *Stats) { s.AwayTransitions++ })
}

func (t *Tracker) count(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.stats)
	t.mu.Unlock()
}

func stopTimer(tm *time.Timer) {
	if !tm.Stop() {
		select {
		case <-tm.C:
		default:
		}
	}
}

func resetTimer(tm *time.Timer, d time.Duration) {
	stopTimer(tm)
	tm.Reset(d)
}
