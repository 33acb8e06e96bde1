package memorystore

import (
	"sort"
	"sync"

	"futuresscreener/pkg/binance"

	"github.com/shopspring/decimal"
)

// MarketStore maps symbol -> latest percent change per interval and last price.
// Rows are created by Register and never deleted. Writes lock a single row;
// readers receive copies.
type MarketStore struct {
	globalMu sync.RWMutex
	rows     map[string]*marketRow
}

type marketRow struct {
	mu        sync.Mutex
	changes   map[binance.Interval]string
	lastPrice decimal.NullDecimal
}

func NewMarketStore() *MarketStore {
	return &MarketStore{
		rows: make(map[string]*marketRow),
	}
}

// Register creates empty rows for symbols not yet present and returns the
// symbols that were added, in input order.
func (s *MarketStore) Register(symbols ...string) []string {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	var added []string
	for _, symbol := range symbols {
		if _, ok := s.rows[symbol]; ok {
			continue
		}
		s.rows[symbol] = &marketRow{changes: make(map[binance.Interval]string)}
		added = append(added, symbol)
	}
	return added
}

// Apply writes the candle's percent change into the row for symbol and
// overwrites the last price with its close. Updates for unregistered symbols,
// unrecognized intervals or unparsable prices are dropped and Apply returns false.
// The latest write wins regardless of candle time.
func (s *MarketStore) Apply(symbol string, k binance.Kline) bool {
	s.globalMu.RLock()
	row, ok := s.rows[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return false
	}

	interval := binance.Interval(k.Interval)
	if !interval.IsValid() {
		return false
	}

	change, err := k.PercentChange()
	if err != nil {
		return false
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return false
	}
	formatted := binance.FormatChange(change)

	row.mu.Lock()
	row.changes[interval] = formatted
	row.lastPrice = decimal.NewNullDecimal(closePrice)
	row.mu.Unlock()
	return true
}

// Get returns a copy of the row for symbol.
func (s *MarketStore) Get(symbol string) (SymbolSnapshot, bool) {
	s.globalMu.RLock()
	row, ok := s.rows[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return SymbolSnapshot{}, false
	}
	return row.snapshot(symbol), true
}

// Snapshot returns a copy of every row, sorted by symbol.
func (s *MarketStore) Snapshot() []SymbolSnapshot {
	s.globalMu.RLock()
	out := make([]SymbolSnapshot, 0, len(s.rows))
	for symbol, row := range s.rows {
		out = append(out, row.snapshot(symbol))
	}
	s.globalMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the registered symbols, sorted.
func (s *MarketStore) Symbols() []string {
	s.globalMu.RLock()
	out := make([]string, 0, len(s.rows))
	for symbol := range s.rows {
		out = append(out, symbol)
	}
	s.globalMu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of registered symbols.
func (s *MarketStore) Len() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return len(s.rows)
}

func (r *marketRow) snapshot(symbol string) SymbolSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := make(map[binance.Interval]string, len(r.changes))
	for k, v := range r.changes {
		changes[k] = v
	}
	return SymbolSnapshot{
		Symbol:    symbol,
		Changes:   changes,
		LastPrice: r.lastPrice,
	}
}
