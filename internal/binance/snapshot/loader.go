package snapshot

import (
	"context"
	"time"

	"futuresscreener/pkg/binance"

	"go.uber.org/zap"
)

// SymbolFetcher resolves the tradable universe. *binance.RESTClient satisfies it.
type SymbolFetcher interface {
	GetTradingSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// KlineFetcher fetches the latest candles of one symbol and interval.
// *binance.RESTClient satisfies it.
type KlineFetcher interface {
	GetKlines(ctx context.Context, symbol string, interval binance.Interval, limit int) ([]binance.Kline, error)
}

type SymbolLoader struct {
	Fetcher    SymbolFetcher
	QuoteAsset string
	Timeout    time.Duration // per request, 0 = none
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// LoadSymbols makes a single attempt to fetch the trading symbols quoted in
// QuoteAsset, in exchange order.
func (l *SymbolLoader) LoadSymbols(ctx context.Context) ([]string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	symbols, err := l.Fetcher.GetTradingSymbols(ctx, l.QuoteAsset)
	if err != nil {
		return nil, err
	}
	l.Logger.Info("loaded symbols", zap.String("quote", l.QuoteAsset), zap.Int("count", len(symbols)))
	return symbols, nil
}

// Resolve retries LoadSymbols every RetryDelay until it succeeds or ctx is done.
func (l *SymbolLoader) Resolve(ctx context.Context) ([]string, error) {
	for attempt := 1; ; attempt++ {
		symbols, err := l.LoadSymbols(ctx)
		if err == nil {
			return symbols, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.Logger.Warn("failed to load symbols, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", l.RetryDelay))

		timer := time.NewTimer(l.RetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
