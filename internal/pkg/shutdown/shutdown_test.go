package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"renderworker/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.Discard()
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	mgr.Register("test", func(ctx context.Context) error { return nil })

	if len(mgr.handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "test" {
		t.Errorf("expected handler name 'test', got %s", mgr.handlers[0].Name)
	}
}

func TestShutdownRunsHandlersLIFO(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var order []string
	for _, name := range []string{"http", "slots", "database"} {
		mgr.RegisterSimple(name, func() { order = append(order, name) })
	}

	mgr.Shutdown()

	want := []string{"database", "slots", "http"}
	if len(order) != len(want) {
		t.Fatalf("expected %d handlers called, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdownRecordsFailures(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var ran atomic.Bool
	mgr.RegisterSimple("ok", func() { ran.Store(true) })
	mgr.Register("failing", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	mgr.Shutdown()

	if !ran.Load() {
		t.Error("a failing handler must not stop the ones registered before it")
	}
	failed := mgr.Failed()
	if len(failed) != 1 || failed[0] != "failing" {
		t.Errorf("expected [failing], got %v", failed)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var calls atomic.Int32
	mgr.RegisterSimple("count", func() { calls.Add(1) })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestContextCanceledOnShutdown(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	ctx := mgr.Context()

	var sawCanceled atomic.Bool
	mgr.Register("observer", func(context.Context) error {
		sawCanceled.Store(ctx.Err() != nil)
		return nil
	})

	select {
	case <-ctx.Done():
		t.Fatal("expected context to not be canceled initially")
	default:
	}

	mgr.Shutdown()

	if !sawCanceled.Load() {
		t.Error("root context must be canceled before handlers run")
	}
	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("expected done channel to be closed after shutdown")
	}
}

func TestTrigger(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	mgr.Trigger("all slots exited")

	select {
	case <-mgr.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("expected Trigger to cancel the root context")
	}

	go mgr.Wait(context.Background())
	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("Wait should complete shutdown after Trigger")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	var skippedRan atomic.Bool
	mgr.RegisterSimple("after", func() { skippedRan.Store(true) })
	mgr.Register("slow", func(ctx context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
	if skippedRan.Load() {
		t.Error("handlers after the deadline should be skipped")
	}
	if len(mgr.Failed()) != 2 {
		t.Errorf("expected both handlers marked failed, got %v", mgr.Failed())
	}
}
