// Package scheduler runs the periodic conversation-archival sweep. A single
// goroutine owns the ticker and executes sweeps strictly one at a time, so
// runs can never overlap; a tick that fires while a sweep is still executing
// is simply dropped by the ticker.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SweepFunc performs one archival pass and reports how many conversations it
// archived.
type SweepFunc func(ctx context.Context) (int64, error)

type Scheduler struct {
	interval time.Duration
	sweep    SweepFunc

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, sweep SweepFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if sweep == nil {
		return nil, errors.New("sweep must not be nil")
	}
	return &Scheduler{
		interval: interval,
		sweep:    sweep,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("sweep scheduler started", "interval", s.interval.String())

		s.runSweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("sweep scheduler stopping")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("sweep scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) runSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	archived, err := s.sweep(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Info("sweep completed", "archived", archived, "duration_ms", time.Since(start).Milliseconds())
}
