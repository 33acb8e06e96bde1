package symbolmeta

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler re-resolves the universe on a fixed cadence and hands every
// successful result to a processing function.
type Scheduler struct {
	// Every of 0 runs daily at UTC midnight; a negative value disables the scheduler.
	Every  time.Duration
	Load   func(ctx context.Context) ([]string, error)
	Logger *zap.Logger
}

// NextRun returns when the scheduler fires after now.
func NextRun(now time.Time, every time.Duration) time.Time {
	if every > 0 {
		return now.Add(every)
	}
	utc := now.UTC()
	return utc.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// Run blocks until ctx is done. It does not load at start; the caller has
// already resolved the initial universe.
func (s *Scheduler) Run(ctx context.Context, proc func(symbols []string)) {
	if s.Every < 0 {
		return
	}
	for {
		next := NextRun(time.Now(), s.Every)
		s.Logger.Debug("next universe refresh", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		symbols, err := s.Load(ctx)
		if err != nil {
			// keep the current universe until the next run
			s.Logger.Warn("universe refresh failed", zap.Error(err))
			continue
		}
		proc(symbols)
	}
}
