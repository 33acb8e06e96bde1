package postgres

import (
	"context"
	"errors"
	"time"

	"futuresscreener/internal/binance/crossing"

	"gorm.io/gorm/clause"
)

// ErrDuplicateAlert is returned when the event was already journaled.
var ErrDuplicateAlert = errors.New("duplicate alert skipped")

func (p *PostgresClient) InsertAlert(ctx context.Context, record *AlertRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrDuplicateAlert
	}
	return nil
}

// ListAlerts returns the newest alerts fired at or after since. An empty symbol
// matches every symbol.
func (p *PostgresClient) ListAlerts(ctx context.Context, symbol string, since time.Time, limit int) ([]AlertRecord, error) {
	q := p.DB.WithContext(ctx).Where("fired_at >= ?", since)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []AlertRecord
	if err := q.Order("fired_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (p *PostgresClient) DeleteOldAlerts(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("fired_at < ?", before).
		Delete(&AlertRecord{})
	return tx.RowsAffected, tx.Error
}

// ToAlertRecord converts a crossing event into an AlertRecord for DB insertion.
func ToAlertRecord(ev crossing.Event) *AlertRecord {
	return &AlertRecord{
		EventID:   ev.ID.String(),
		Symbol:    ev.Symbol,
		Interval:  string(ev.Interval),
		Direction: string(ev.Direction),
		Change:    ev.Change,
		Threshold: ev.Threshold,
		Message:   ev.Message(),
		FiredAt:   ev.At.UTC(),
	}
}
