// Package supervisor runs the pool's health and idle sweeps on a fixed
// interval.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is the default time between sweep passes.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper is the slice of the pool the supervisor drives.
type Sweeper interface {
	HealthSweep(ctx context.Context) int
	IdleSweep(ctx context.Context) int
}

// Supervisor invokes health and idle sweeps in the same pass on a fixed
// interval.
type Supervisor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures the supervisor.
type Option func(*Supervisor)

// WithInterval overrides the sweep interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Supervisor) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// New creates a supervisor over the given sweeper.
func New(sweeper Sweeper, opts ...Option) *Supervisor {
	s := &Supervisor{
		sweeper:  sweeper,
		interval: DefaultSweepInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "supervisor"))
	return s
}

// Start begins the sweep loop. Calling Start on a running supervisor is a
// no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.runSweeps(sweepCtx)
}

// Stop halts the sweep loop and waits for the in-flight pass to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// runSweeps executes sweep passes until the context ends.
func (s *Supervisor) runSweeps(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping")
			return

		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one health-and-idle pass.
func (s *Supervisor) sweep(ctx context.Context) {
	start := time.Now()
	removed := s.sweeper.HealthSweep(ctx)
	reaped := s.sweeper.IdleSweep(ctx)

	s.logger.Debug("sweep pass complete",
		slog.Int("unhealthy_removed", removed),
		slog.Int("idle_reaped", reaped),
		slog.Duration("duration", time.Since(start)),
	)
}

// IsRunning reports whether the sweep loop is active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
