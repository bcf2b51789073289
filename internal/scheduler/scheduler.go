// Package scheduler drives the periodic lifecycle sweep: a single ticker
// loop that runs every time-based transition step in a fixed order, with
// each step isolated from the others' failures.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/logging"
)

// Step is one unit of the sweep. Steps must be idempotent and safe to re-run
// on overlapping or skipped ticks.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler executes the ordered sweep on a fixed interval, starting with an
// immediate run. Ticks never overlap: the loop waits for the current sweep
// to finish before the ticker can fire again.
type Scheduler struct {
	interval time.Duration
	steps    []Step
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New constructs a Scheduler running the given steps in order every
// interval.
func New(interval time.Duration, steps []Step) *Scheduler {
	return &Scheduler{
		interval: interval,
		steps:    steps,
		log:      logging.Component("scheduler"),
	}
}

// RunAllTransitions executes every step once, in order. A step failure is
// logged with the step name and does not prevent later steps from running.
// Exposed for manual, out-of-band invocation.
func (s *Scheduler) RunAllTransitions(ctx context.Context) {
	started := time.Now()
	for _, step := range s.steps {
		if ctx.Err() != nil {
			return
		}
		if err := step.Run(ctx); err != nil {
			s.log.Error().Err(err).Str("step", step.Name).Msg("sweep step failed")
		}
	}
	s.log.Debug().Dur("elapsed", time.Since(started)).Int("steps", len(s.steps)).Msg("sweep finished")
}

// Start launches the sweep loop: one immediate run, then one per interval.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
		s.RunAllTransitions(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunAllTransitions(ctx)
			case <-ctx.Done():
				s.log.Info().Msg("scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
}
