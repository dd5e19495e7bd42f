package mutation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/taskflow/tasksync/internal/cache"
)

func waitSettled(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("mutation never settled")
	}
	return err
}

func TestApply_OptimisticValueVisibleImmediately(t *testing.T) {
	store := cache.NewStore(slog.Default())
	store.Set("task:42.status", "todo")
	c := NewCoordinator(store, slog.Default())

	block := make(chan struct{})
	p, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "done",
		Persist: func(context.Context) error {
			<-block
			return nil
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if v, _ := store.Get("task:42.status"); v != "done" {
		t.Fatalf("expected optimistic value immediately, got %v", v)
	}
	if p.State() != StatePending {
		t.Fatalf("expected pending state, got %v", p.State())
	}

	close(block)
	if err := waitSettled(t, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State() != StateCommitted {
		t.Fatalf("expected committed, got %v", p.State())
	}
	if v, _ := store.Get("task:42.status"); v != "done" {
		t.Fatalf("committed value must stand, got %v", v)
	}
}

func TestApply_FailureRollsBackExactValue(t *testing.T) {
	store := cache.NewStore(slog.Default())
	store.Set("task:42.status", "todo")
	store.Set("task:43.status", "in_progress")
	c := NewCoordinator(store, slog.Default())

	persistErr := errors.New("server rejected")
	p, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "done",
		Persist:   func(context.Context) error { return persistErr },
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	gotErr := waitSettled(t, p)
	if !errors.Is(gotErr, persistErr) {
		t.Fatalf("expected wrapped persist error, got %v", gotErr)
	}
	if p.State() != StateRolledBack {
		t.Fatalf("expected rolled back, got %v", p.State())
	}
	if v, _ := store.Get("task:42.status"); v != "todo" {
		t.Fatalf("expected rollback to previous value, got %v", v)
	}
	if v, _ := store.Get("task:43.status"); v != "in_progress" {
		t.Fatalf("unrelated key changed during rollback: %v", v)
	}
}

func TestApply_RollbackRemovesSlotThatDidNotExist(t *testing.T) {
	store := cache.NewStore(slog.Default())
	c := NewCoordinator(store, slog.Default())

	p, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:99.status",
		Desired:   "done",
		Persist:   func(context.Context) error { return errors.New("nope") },
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitSettled(t, p)

	if _, ok := store.Get("task:99.status"); ok {
		t.Fatal("slot should be absent again after rollback")
	}
}

func TestApply_CommitFiresReconcileInvalidation(t *testing.T) {
	store := cache.NewStore(slog.Default())
	c := NewCoordinator(store, slog.Default())

	fired := make(chan cache.Scope, 1)
	store.OnInvalidate(func(s cache.Scope) { fired <- s })

	p, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "done",
		Reconcile: []cache.Scope{{Kind: cache.ScopeTaskDetail, TaskID: "42"}},
		Persist:   func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitSettled(t, p)

	select {
	case scope := <-fired:
		if scope.Kind != cache.ScopeTaskDetail || scope.TaskID != "42" {
			t.Fatalf("unexpected reconcile scope: %+v", scope)
		}
	case <-time.After(time.Second):
		t.Fatal("reconcile invalidation never fired")
	}
}

func TestApply_NoReconcileOnFailure(t *testing.T) {
	store := cache.NewStore(slog.Default())
	c := NewCoordinator(store, slog.Default())

	fired := make(chan cache.Scope, 1)
	store.OnInvalidate(func(s cache.Scope) { fired <- s })

	p, _ := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "done",
		Reconcile: []cache.Scope{{Kind: cache.ScopeTaskDetail, TaskID: "42"}},
		Persist:   func(context.Context) error { return errors.New("nope") },
	})
	waitSettled(t, p)

	select {
	case scope := <-fired:
		t.Fatalf("reconcile must not fire on rollback, got %+v", scope)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestApply_Validation(t *testing.T) {
	c := NewCoordinator(cache.NewStore(slog.Default()), slog.Default())

	if _, err := c.Apply(context.Background(), Mutation{Desired: "x", Persist: func(context.Context) error { return nil }}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	if _, err := c.Apply(context.Background(), Mutation{TargetKey: "k", Desired: "x"}); !errors.Is(err, ErrNoPersist) {
		t.Errorf("expected ErrNoPersist, got %v", err)
	}
}

// Overlapping mutations on one key keep independent snapshots, so a late
// failure restores a value from before the other mutation committed. That
// is last-write-wins by construction, preserved here on purpose.
func TestApply_OverlappingMutationsLastWriteWins(t *testing.T) {
	store := cache.NewStore(slog.Default())
	store.Set("task:42.status", "todo")
	c := NewCoordinator(store, slog.Default())

	firstGate := make(chan error, 1)
	first, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "in_progress",
		Persist:   func(context.Context) error { return <-firstGate },
	})
	if err != nil {
		t.Fatalf("apply first: %v", err)
	}

	// Second mutation snapshots the first one's optimistic value.
	second, err := c.Apply(context.Background(), Mutation{
		TargetKey: "task:42.status",
		Desired:   "done",
		Persist:   func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("apply second: %v", err)
	}
	if err := waitSettled(t, second); err != nil {
		t.Fatalf("second should commit: %v", err)
	}
	if v, _ := store.Get("task:42.status"); v != "done" {
		t.Fatalf("expected second mutation's value, got %v", v)
	}

	// First fails after second committed; its rollback wins the slot.
	firstGate <- errors.New("conflict")
	if err := waitSettled(t, first); err == nil {
		t.Fatal("first should roll back")
	}
	if v, _ := store.Get("task:42.status"); v != "todo" {
		t.Fatalf("expected first mutation's snapshot, got %v", v)
	}
}

func TestDrain(t *testing.T) {
	store := cache.NewStore(slog.Default())
	c := NewCoordinator(store, slog.Default())

	gate := make(chan struct{})
	c.Apply(context.Background(), Mutation{
		TargetKey: "k",
		Desired:   "v",
		Persist: func(context.Context) error {
			<-gate
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while mutation in flight, got %v", err)
	}

	close(gate)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := c.Drain(ctx2); err != nil {
		t.Fatalf("drain after settle: %v", err)
	}

	stats := c.Stats()
	if stats.Applied != 1 || stats.Committed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
