package alert

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AlertPruner deletes journaled alerts. *postgres.PostgresClient satisfies it.
type AlertPruner interface {
	DeleteOldAlerts(ctx context.Context, before time.Time) (int64, error)
}

// Retention prunes alerts older than Keep every Every. Keep <= 0 disables it.
type Retention struct {
	Journal AlertPruner
	Keep    time.Duration
	Every   time.Duration
	Logger  *zap.Logger

	now func() time.Time
}

// Run prunes once immediately and then on every tick until ctx is done.
// A failed prune is logged and retried on the next tick.
func (r *Retention) Run(ctx context.Context) {
	if r.Keep <= 0 || r.Every <= 0 {
		return
	}
	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()

	for {
		r.prune(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Retention) prune(ctx context.Context) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	cutoff := now().Add(-r.Keep)

	n, err := r.Journal.DeleteOldAlerts(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			r.Logger.Warn("failed to prune alert journal", zap.Error(err))
		}
		return
	}
	if n > 0 {
		r.Logger.Info("pruned alert journal", zap.Int64("deleted", n), zap.Time("before", cutoff))
	}
}
