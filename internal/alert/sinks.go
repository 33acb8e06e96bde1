package alert

import (
	"context"
	"errors"

	"futuresscreener/internal/binance/crossing"
	"futuresscreener/pkg/storage/postgres"

	"go.uber.org/zap"
)

// LogSink writes every alert to the application log.
type LogSink struct {
	Logger *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(_ context.Context, ev crossing.Event) error {
	s.Logger.Info(ev.Message(),
		zap.String("event_id", ev.ID.String()),
		zap.String("symbol", ev.Symbol),
		zap.String("interval", string(ev.Interval)),
		zap.String("direction", string(ev.Direction)),
		zap.String("change", ev.Change.StringFixed(2)),
	)
	return nil
}

// AlertJournal stores alerts. *postgres.PostgresClient satisfies it.
type AlertJournal interface {
	InsertAlert(ctx context.Context, record *postgres.AlertRecord) error
}

// JournalSink records every alert in the alert_record table.
type JournalSink struct {
	Journal AlertJournal
}

func (JournalSink) Name() string { return "postgres" }

func (s JournalSink) Send(ctx context.Context, ev crossing.Event) error {
	err := s.Journal.InsertAlert(ctx, postgres.ToAlertRecord(ev))
	if errors.Is(err, postgres.ErrDuplicateAlert) {
		return nil
	}
	return err
}

// Publisher broadcasts alerts. *cache.Mirror satisfies it.
type Publisher interface {
	PublishAlert(ctx context.Context, ev crossing.Event) error
}

// PublishSink forwards every alert to a pub/sub channel.
type PublishSink struct {
	Publisher Publisher
}

func (PublishSink) Name() string { return "redis" }

func (s PublishSink) Send(ctx context.Context, ev crossing.Event) error {
	return s.Publisher.PublishAlert(ctx, ev)
}
