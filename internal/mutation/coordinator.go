package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/taskflow/tasksync/internal/cache"
)

// Errors
var (
	ErrNoTarget  = errors.New("mutation has no target key")
	ErrNoPersist = errors.New("mutation has no persist call")
)

// State tracks a mutation through its lifecycle.
type State int32

const (
	StatePending State = iota
	StateCommitted
	StateRolledBack
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// PersistFunc performs the external persistence call for a mutation.
type PersistFunc func(ctx context.Context) error

// Mutation describes one optimistic write.
type Mutation struct {
	// TargetKey addresses the cache slot to write.
	TargetKey string

	// Desired is the optimistic value written before persistence confirms.
	Desired any

	// Reconcile lists scopes invalidated after a successful commit so the
	// cache picks up any server-computed fields.
	Reconcile []cache.Scope

	// Persist is the external call that makes the change durable.
	Persist PersistFunc
}

// Store is the cache surface the coordinator mutates.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, scopes ...cache.Scope)
	Restore(key string, value any, existed bool)
	Invalidate(scopes ...cache.Scope)
}

// Pending is a handle to an in-flight mutation.
type Pending struct {
	ID  uuid.UUID
	Key string

	state atomic.Int32
	done  chan error
}

// State returns the mutation's current lifecycle state.
func (p *Pending) State() State {
	return State(p.state.Load())
}

// Done delivers the mutation's outcome exactly once: nil on commit, the
// persistence error on rollback.
func (p *Pending) Done() <-chan error {
	return p.done
}

// Wait blocks until the mutation settles or ctx expires.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time snapshot of coordinator counters.
type Stats struct {
	Applied    int64
	Committed  int64
	RolledBack int64
}

// Coordinator runs optimistic mutations against a cache store.
type Coordinator struct {
	logger *slog.Logger
	store  Store

	wg sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewCoordinator creates a mutation coordinator over store.
func NewCoordinator(store Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger: logger,
		store:  store,
	}
}

// Apply writes the desired value immediately and persists it in the
// background. The snapshot for rollback is taken here, at call time, so
// concurrent mutations on one key are tracked independently.
func (c *Coordinator) Apply(ctx context.Context, m Mutation) (*Pending, error) {
	if m.TargetKey == "" {
		return nil, ErrNoTarget
	}
	if m.Persist == nil {
		return nil, ErrNoPersist
	}

	previous, existed := c.store.Get(m.TargetKey)
	c.store.Set(m.TargetKey, m.Desired)

	p := &Pending{
		ID:   uuid.New(),
		Key:  m.TargetKey,
		done: make(chan error, 1),
	}
	p.state.Store(int32(StatePending))

	c.count(func(s *Stats) { s.Applied++ })
	c.logger.Debug("mutation applied", "id", p.ID, "key", m.TargetKey)

	c.wg.Add(1)
	go c.persist(ctx, m, p, previous, existed)

	return p, nil
}

// Drain waits for all in-flight mutations to settle, up to ctx.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) persist(ctx context.Context, m Mutation, p *Pending, previous any, existed bool) {
	defer c.wg.Done()

	err := m.Persist(ctx)
	if err == nil {
		p.state.Store(int32(StateCommitted))
		c.count(func(s *Stats) { s.Committed++ })
		if len(m.Reconcile) > 0 {
			c.store.Invalidate(m.Reconcile...)
		}
		c.logger.Debug("mutation committed", "id", p.ID, "key", m.TargetKey)
		p.done <- nil
		return
	}

	// Exactly the snapshot, into exactly this slot. No other entry moves.
	c.store.Restore(m.TargetKey, previous, existed)
	p.state.Store(int32(StateRolledBack))
	c.count(func(s *Stats) { s.RolledBack++ })
	c.logger.Warn("mutation rolled back", "id", p.ID, "key", m.TargetKey, "error", err)
	p.done <- fmt.Errorf("persist %s: %w", m.TargetKey, err)
}

func (c *Coordinator) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
