// Package gc periodically removes expired sessions and cache entries for
// users who never come back to trigger lazy eviction.
package gc

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/evabot/core/logger"
)

// Sweeper removes whatever is expired at now and reports how many entries went.
// Each sweeper applies its own retention window.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func(ctx context.Context, now time.Time) (int, error)

// Sweep calls f.
func (f SweeperFunc) Sweep(ctx context.Context, now time.Time) (int, error) { return f(ctx, now) }

// Scheduler runs every sweeper once on Run and then on each tick.
type Scheduler struct {
	// Sweepers maps a log name to its sweeper.
	Sweepers map[string]Sweeper
	// Interval between runs. If <= 0, only the initial run happens and Run
	// then waits for ctx.
	Interval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
	// NewTicker defaults to time.NewTicker; tests inject a manual channel.
	NewTicker func(d time.Duration) (tick <-chan time.Time, stop func())
}

// Result is the outcome of one sweep pass.
type Result struct {
	Removed map[string]int
	Failed  map[string]error
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	if s.Interval <= 0 {
		<-ctx.Done()
		return
	}
	newTicker := s.NewTicker
	if newTicker == nil {
		newTicker = defaultNewTicker
	}
	tick, stop := newTicker(s.Interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every registered store in name order. A failing sweeper is
// logged and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) Result {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()
	start := time.Now()

	names := make([]string, 0, len(s.Sweepers))
	for name := range s.Sweepers {
		names = append(names, name)
	}
	sort.Strings(names)

	res := Result{Removed: map[string]int{}, Failed: map[string]error{}}
	attrs := make([]slog.Attr, 0, len(names)+2)
	for _, name := range names {
		n, err := s.Sweepers[name].Sweep(ctx, at)
		res.Removed[name] = n
		attrs = append(attrs, slog.Int(name, n))
		if err != nil {
			res.Failed[name] = err
			logger.Error(ctx, logger.CompGC, "sweep.failed",
				slog.String("status", "fail"),
				slog.String("cause", name),
				slog.String("err", err.Error()),
			)
		}
	}
	status := "ok"
	if len(res.Failed) > 0 {
		status = "fail"
	}
	attrs = append(attrs,
		slog.String("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.Info(ctx, logger.CompGC, "sweep.done", attrs...)
	return res
}

func defaultNewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
