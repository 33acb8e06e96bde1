package memorystore

import (
	"futuresscreener/pkg/binance"

	"github.com/shopspring/decimal"
)

// SymbolSnapshot is a copy of one row of the market table.
// Changes holds the latest percent change per interval, formatted with two
// decimals; an interval without data is absent.
type SymbolSnapshot struct {
	Symbol    string                      `json:"symbol"`
	Changes   map[binance.Interval]string `json:"changes"`
	LastPrice decimal.NullDecimal         `json:"lastPrice"`
}

// Change returns the formatted change for an interval and whether it is known.
func (s SymbolSnapshot) Change(interval binance.Interval) (string, bool) {
	v, ok := s.Changes[interval]
	return v, ok
}
