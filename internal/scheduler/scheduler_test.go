package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(0, func(context.Context) (int64, error) { return 0, nil }); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(time.Second, nil); err == nil {
		t.Fatalf("expected error for nil sweep func")
	}
}

func TestScheduler_StartRunsImmediateSweep(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s, err := New(time.Hour, func(context.Context) (int64, error) {
		runs.Add(1)
		return 2, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !s.Start() {
		t.Fatalf("Start() = false on first start")
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s.Start() {
		t.Fatalf("second Start() must be a no-op")
	}
}

func TestScheduler_StopIsIdempotentSignal(t *testing.T) {
	t.Parallel()

	s, err := New(time.Hour, func(context.Context) (int64, error) { return 0, nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.Stop() {
		t.Fatalf("Stop() before Start() must return false")
	}

	s.Start()
	if !s.Stop() {
		t.Fatalf("Stop() after Start() must return true")
	}
	if s.IsRunning() {
		t.Fatalf("IsRunning() = true after Stop()")
	}
	if s.Stop() {
		t.Fatalf("second Stop() must return false")
	}
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s, err := New(10*time.Millisecond, func(context.Context) (int64, error) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return 0, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler did not survive the panic; runs=%d", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
