package crossing

import (
	"fmt"
	"sync"
	"time"

	"futuresscreener/pkg/binance"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultThreshold is the half-width of the band, in percent.
var DefaultThreshold = decimal.NewFromInt(5)

type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Event is emitted when a value leaves the band from inside it.
type Event struct {
	ID        uuid.UUID
	Symbol    string
	Interval  binance.Interval
	Direction Direction
	Change    decimal.Decimal
	Threshold decimal.Decimal
	At        time.Time
}

// Message renders the alert text sent to notifiers.
func (e Event) Message() string {
	if e.Direction == Above {
		return fmt.Sprintf("🟢 %s crossed above %s%% on %s timeframe (%s%%)",
			e.Symbol, e.Threshold.String(), e.Interval, binance.FormatChange(e.Change))
	}
	return fmt.Sprintf("🔴 %s crossed below -%s%% on %s timeframe (%s%%)",
		e.Symbol, e.Threshold.String(), e.Interval, binance.FormatChange(e.Change))
}

type key struct {
	symbol   string
	interval binance.Interval
}

// Detector turns a stream of percent changes into crossing events. The previous
// value per (symbol, interval) starts at 0 and is replaced on every observation.
// An event fires only when the previous value was inside the band
// (|prev| <= threshold), so a value that stays outside stays silent until it
// re-enters the band. Keys are never evicted.
type Detector struct {
	threshold decimal.Decimal
	now       func() time.Time

	mu       sync.Mutex
	previous map[key]decimal.Decimal
}

func NewDetector(threshold decimal.Decimal) *Detector {
	if !threshold.IsPositive() {
		threshold = DefaultThreshold
	}
	return &Detector{
		threshold: threshold,
		now:       time.Now,
		previous:  make(map[key]decimal.Decimal),
	}
}

// Observe records change as the latest value and returns the event it triggers, if any.
func (d *Detector) Observe(symbol string, interval binance.Interval, change decimal.Decimal) (Event, bool) {
	k := key{symbol: symbol, interval: interval}

	d.mu.Lock()
	prev := d.previous[k]
	d.previous[k] = change
	d.mu.Unlock()

	if prev.Abs().GreaterThan(d.threshold) {
		return Event{}, false
	}

	var dir Direction
	switch {
	case change.GreaterThan(d.threshold):
		dir = Above
	case change.LessThan(d.threshold.Neg()):
		dir = Below
	default:
		return Event{}, false
	}

	return Event{
		ID:        uuid.New(),
		Symbol:    symbol,
		Interval:  interval,
		Direction: dir,
		Change:    change,
		Threshold: d.threshold,
		At:        d.now(),
	}, true
}

// Previous returns the last observed value for a key.
func (d *Detector) Previous(symbol string, interval binance.Interval) (decimal.Decimal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.previous[key{symbol: symbol, interval: interval}]
	return v, ok
}

// Len returns the number of tracked (symbol, interval) keys.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.previous)
}

func (d *Detector) Threshold() decimal.Decimal {
	return d.threshold
}
