package snapshot

import (
	"context"
	"fmt"

	"futuresscreener/internal/binance/fetchqueue"
	"futuresscreener/internal/binance/stream"
	"futuresscreener/pkg/binance"

	"go.uber.org/zap"
)

// Seeder fills the market store from REST before (and alongside) the streams.
// Every symbol x interval pair becomes one fetch queue task.
type Seeder struct {
	Fetcher  KlineFetcher
	Queue    *fetchqueue.Queue
	Ingestor stream.Ingestor
	Limit    int // 1 = current candle, 2 = previous open with current close
	Logger   *zap.Logger
}

// Seed enqueues one task per pair and returns their futures without waiting.
func (s *Seeder) Seed(symbols []string, intervals []binance.Interval) []*fetchqueue.Future {
	if len(symbols) == 0 || len(intervals) == 0 {
		return nil
	}
	tasks := make([]fetchqueue.Task, 0, len(symbols)*len(intervals))
	for _, symbol := range symbols {
		for _, interval := range intervals {
			tasks = append(tasks, s.task(symbol, interval))
		}
	}
	s.Logger.Info("seeding market state", zap.Int("symbols", len(symbols)), zap.Int("requests", len(tasks)))
	return s.Queue.EnqueueAll(tasks...)
}

// SeedAndWait seeds and blocks until every task has resolved or ctx is done.
// It returns the number of failed tasks.
func (s *Seeder) SeedAndWait(ctx context.Context, symbols []string, intervals []binance.Interval) (int, error) {
	failed := 0
	for _, f := range s.Seed(symbols, intervals) {
		select {
		case <-f.Done():
			if f.Err() != nil {
				failed++
			}
		case <-ctx.Done():
			return failed, ctx.Err()
		}
	}
	return failed, nil
}

func (s *Seeder) task(symbol string, interval binance.Interval) fetchqueue.Task {
	return func(ctx context.Context) error {
		rows, err := s.Fetcher.GetKlines(ctx, symbol, interval, s.limit())
		if err != nil {
			return fmt.Errorf("seed %s %s: %w", symbol, interval, err)
		}
		k, ok := binance.SeedKline(rows)
		if !ok {
			s.Logger.Debug("no seed candle", zap.String("symbol", symbol), zap.String("interval", string(interval)))
			return nil
		}
		s.Ingestor.Ingest(symbol, k)
		return nil
	}
}

func (s *Seeder) limit() int {
	if s.Limit == 2 {
		return 2
	}
	return 1
}
