package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"futuresscreener/internal/binance/crossing"
	"futuresscreener/internal/binance/memorystore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MarketRow is the JSON value stored per symbol in the market hash.
type MarketRow struct {
	Symbol    string            `json:"symbol"`
	Changes   map[string]string `json:"changes"`
	LastPrice string            `json:"lastPrice,omitempty"`
	UpdatedAt int64             `json:"updatedAt"` // unix ms
}

// AlertMessage is published on the alert channel for every crossing event.
type AlertMessage struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Interval  string `json:"interval"`
	Direction string `json:"direction"`
	Change    string `json:"change"`
	Text      string `json:"text"`
	At        int64  `json:"at"` // unix ms
}

func ToMarketRow(s memorystore.SymbolSnapshot, at time.Time) MarketRow {
	row := MarketRow{
		Symbol:    s.Symbol,
		Changes:   make(map[string]string, len(s.Changes)),
		UpdatedAt: at.UnixMilli(),
	}
	for interval, change := range s.Changes {
		row.Changes[string(interval)] = change
	}
	if s.LastPrice.Valid {
		row.LastPrice = s.LastPrice.Decimal.String()
	}
	return row
}

func ToAlertMessage(ev crossing.Event) AlertMessage {
	return AlertMessage{
		ID:        ev.ID.String(),
		Symbol:    ev.Symbol,
		Interval:  string(ev.Interval),
		Direction: string(ev.Direction),
		Change:    ev.Change.StringFixed(2),
		Text:      ev.Message(),
		At:        ev.At.UnixMilli(),
	}
}

// Mirror copies the market table into Redis for readers outside the process.
// Rows live in the hash "<prefix>:market", alerts go to "<prefix>:alerts".
type Mirror struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewMirror(client *redis.Client, prefix string) *Mirror {
	if prefix == "" {
		prefix = "screener"
	}
	return &Mirror{client: client, prefix: prefix, now: time.Now}
}

func (m *Mirror) MarketKey() string { return m.prefix + ":market" }

func (m *Mirror) AlertChannel() string { return m.prefix + ":alerts" }

// WriteSnapshot stores every row in one pipelined HSET.
func (m *Mirror) WriteSnapshot(ctx context.Context, rows []memorystore.SymbolSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	at := m.now()
	values := make([]any, 0, len(rows)*2)
	for _, s := range rows {
		data, err := json.Marshal(ToMarketRow(s, at))
		if err != nil {
			return fmt.Errorf("marshal %s: %w", s.Symbol, err)
		}
		values = append(values, s.Symbol, data)
	}

	if err := m.client.HSet(ctx, m.MarketKey(), values...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", m.MarketKey(), err)
	}
	return nil
}

func (m *Mirror) PublishAlert(ctx context.Context, ev crossing.Event) error {
	data, err := json.Marshal(ToAlertMessage(ev))
	if err != nil {
		return err
	}
	if err := m.client.Publish(ctx, m.AlertChannel(), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", m.AlertChannel(), err)
	}
	return nil
}

// DefaultMirrorInterval is used when Run is given a non-positive interval.
const DefaultMirrorInterval = 2 * time.Second

// Run writes source() every interval until ctx is done. Write failures are
// logged and retried on the next tick.
func (m *Mirror) Run(ctx context.Context, interval time.Duration, source func() []memorystore.SymbolSnapshot, logger *zap.Logger) {
	if interval <= 0 {
		interval = DefaultMirrorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, interval)
			err := m.WriteSnapshot(writeCtx, source())
			cancel()
			if err != nil && ctx.Err() == nil {
				logger.Warn("failed to mirror market snapshot", zap.Error(err))
			}
		}
	}
}
