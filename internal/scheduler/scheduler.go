package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per poll cycle.
type TickFunc func(ctx context.Context, started time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// CycleTimeout bounds one tick end to end, so a stalled network call can
	// never wedge the loop. Zero disables the deadline.
	CycleTimeout time.Duration
}

// Scheduler drives the poll loop on a fixed interval. Cancellation is
// observed between cycles; a call already in flight runs to completion
// (or to the cycle deadline).
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function every interval until ctx is
// cancelled. Tick errors are logged, never fatal: the loop must survive all
// component failures once started.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		started := time.Now().UTC()
		s.runCycle(ctx, tick, started)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, tick TickFunc, started time.Time) {
	cycleCtx := ctx
	if s.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.opts.CycleTimeout)
		defer cancel()
	}

	s.logger.Debug().Time("started", started).Msg("poll cycle begin")
	if err := tick(cycleCtx, started); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Time("started", started).Msg("poll cycle failed")
		return
	}
	s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("poll cycle complete")
}
