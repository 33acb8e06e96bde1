package binance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrZeroOpen is returned when a candle opens at zero and has no defined percent change.
var ErrZeroOpen = errors.New("open price is zero")

var hundred = decimal.NewFromInt(100)

// PercentChange returns (close - open) / open * 100.
func PercentChange(open, close string) (decimal.Decimal, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse open %q: %w", open, err)
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse close %q: %w", close, err)
	}
	if o.IsZero() {
		return decimal.Zero, ErrZeroOpen
	}
	return c.Sub(o).Div(o).Mul(hundred), nil
}

// PercentChange of the candle itself.
func (k Kline) PercentChange() (decimal.Decimal, error) {
	return PercentChange(k.Open, k.Close)
}

// FormatChange renders a percent change with two decimals, rounding half away from zero.
func FormatChange(change decimal.Decimal) string {
	return change.StringFixed(2)
}

// ParseKlineList converts REST kline rows into Klines.
// Rows are [openTime, open, high, low, close, volume, closeTime, ...]; incomplete
// or malformed rows are skipped. Trade-derived fields stay zeroed.
func ParseKlineList(symbol string, interval Interval, raw [][]json.RawMessage) []Kline {
	out := make([]Kline, 0, len(raw))
	for _, row := range raw {
		k, err := parseKlineRow(row)
		if err != nil {
			continue
		}
		k.Symbol = symbol
		k.Interval = string(interval)
		k.IsClosed = true
		k.QuoteVolume = "0"
		k.TakerBuyBaseVolume = "0"
		k.TakerBuyQuoteVolume = "0"
		out = append(out, k)
	}
	return out
}

func parseKlineRow(row []json.RawMessage) (Kline, error) {
	if len(row) < 7 {
		return Kline{}, fmt.Errorf("incomplete row: %d fields", len(row))
	}

	var k Kline
	if err := json.Unmarshal(row[0], &k.OpenTime); err != nil {
		return Kline{}, fmt.Errorf("open time: %w", err)
	}
	prices := []*string{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
	for i, dst := range prices {
		if err := json.Unmarshal(row[i+1], dst); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		if _, err := decimal.NewFromString(*dst); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	if err := json.Unmarshal(row[6], &k.CloseTime); err != nil {
		return Kline{}, fmt.Errorf("close time: %w", err)
	}
	return k, nil
}

// SeedKline collapses the rows of a limit=1 or limit=2 request into the single
// candle used to seed state. With two rows the previous candle's open is paired
// with the current candle's close.
func SeedKline(rows []Kline) (Kline, bool) {
	switch len(rows) {
	case 0:
		return Kline{}, false
	case 1:
		return rows[0], true
	}
	prev, cur := rows[len(rows)-2], rows[len(rows)-1]
	cur.Open = prev.Open
	cur.OpenTime = prev.OpenTime
	return cur, true
}
