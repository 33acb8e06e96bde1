package snapshot

import (
	"context"
	"time"

	"futuresscreener/pkg/binance"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// DefaultMaxPollPeriod caps the refresh period of long intervals.
const DefaultMaxPollPeriod = time.Hour

// Poller periodically re-seeds every symbol through the fetch queue, one loop
// per interval, as a REST fallback for the streams.
type Poller struct {
	Seeder    *Seeder
	Symbols   func() []string
	Intervals []binance.Interval
	MaxPeriod time.Duration
	Logger    *zap.Logger
}

// PollPeriod returns how often an interval is refreshed: its own duration,
// capped at max.
func PollPeriod(interval binance.Interval, max time.Duration) time.Duration {
	if max <= 0 {
		max = DefaultMaxPollPeriod
	}
	d := interval.Duration()
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Run blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	var wg conc.WaitGroup
	for _, interval := range p.Intervals {
		wg.Go(func() { p.loop(ctx, interval) })
	}
	wg.Wait()
}

func (p *Poller) loop(ctx context.Context, interval binance.Interval) {
	period := PollPeriod(interval, p.MaxPeriod)
	p.Logger.Info("rest polling started", zap.String("interval", string(interval)), zap.Duration("period", period))

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Seeder.Seed(p.Symbols(), []binance.Interval{interval})
		}
	}
}
