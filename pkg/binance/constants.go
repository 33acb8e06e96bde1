package binance

import (
	"fmt"
	"time"
)

// Interval is the kline interval label used by both the REST and the stream API.
type Interval string

// IntervalMeta holds the nominal duration of an interval and whether it belongs to
// the short (live alerting) or long (extended display) group.
type IntervalMeta struct {
	Duration time.Duration
	Short    bool
}

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

const day = 24 * time.Hour

var validIntervals = map[Interval]IntervalMeta{
	Interval5m:  {Duration: 5 * time.Minute, Short: true},
	Interval15m: {Duration: 15 * time.Minute, Short: true},
	Interval30m: {Duration: 30 * time.Minute, Short: true},
	Interval1h:  {Duration: time.Hour, Short: true},
	Interval2h:  {Duration: 2 * time.Hour, Short: true},
	Interval4h:  {Duration: 4 * time.Hour, Short: true},
	Interval8h:  {Duration: 8 * time.Hour},
	Interval12h: {Duration: 12 * time.Hour},
	Interval1d:  {Duration: day},
	Interval1w:  {Duration: 7 * day},
	Interval1M:  {Duration: 30 * day}, // nominal month
}

// ShortIntervals are streamed and alerted on by default.
var ShortIntervals = []Interval{Interval5m, Interval15m, Interval30m, Interval1h, Interval2h, Interval4h}

// LongIntervals are only tracked for display when explicitly configured.
var LongIntervals = []Interval{Interval8h, Interval12h, Interval1d, Interval1w, Interval1M}

// AllIntervals returns every recognized interval in display order.
func AllIntervals() []Interval {
	out := make([]Interval, 0, len(ShortIntervals)+len(LongIntervals))
	out = append(out, ShortIntervals...)
	return append(out, LongIntervals...)
}

// IsValid checks if the Interval is one of the enumerated intervals.
func (i Interval) IsValid() bool {
	_, ok := validIntervals[i]
	return ok
}

// IsShort reports whether the interval belongs to the short group.
func (i Interval) IsShort() bool {
	return validIntervals[i].Short
}

// Duration returns the nominal length of the interval, or 0 if it is not recognized.
func (i Interval) Duration() time.Duration {
	return validIntervals[i].Duration
}

// ParseInterval parses a string into a valid Interval.
func ParseInterval(s string) (Interval, error) {
	interval := Interval(s)
	if !interval.IsValid() {
		return "", fmt.Errorf("invalid interval: %q", s)
	}
	return interval, nil
}

// ParseIntervals parses every label, failing on the first unknown one. Duplicates are dropped.
func ParseIntervals(labels []string) ([]Interval, error) {
	seen := make(map[Interval]bool, len(labels))
	out := make([]Interval, 0, len(labels))
	for _, s := range labels {
		interval, err := ParseInterval(s)
		if err != nil {
			return nil, err
		}
		if seen[interval] {
			continue
		}
		seen[interval] = true
		out = append(out, interval)
	}
	return out, nil
}
