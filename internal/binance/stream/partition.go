package stream

import (
	"strings"

	"futuresscreener/pkg/binance"
)

// DefaultPartitionSize is the number of streams subscribed per connection.
const DefaultPartitionSize = 200

// Partition is a fixed group of stream names served by one connection. It is
// never modified after creation and is re-used verbatim on reconnect.
type Partition struct {
	Index   int
	Streams []string
}

// StreamName returns the kline stream name for a symbol, e.g. "btcusdt@kline_5m".
func StreamName(symbol string, interval binance.Interval) string {
	return strings.ToLower(symbol) + "@kline_" + string(interval)
}

// StreamNames lists every (symbol, interval) stream, symbol-major.
func StreamNames(symbols []string, intervals []binance.Interval) []string {
	out := make([]string, 0, len(symbols)*len(intervals))
	for _, symbol := range symbols {
		for _, interval := range intervals {
			out = append(out, StreamName(symbol, interval))
		}
	}
	return out
}

// Partitions chunks names into contiguous groups of at most size, preserving
// order. Indexes start at firstIndex so partitions added later keep unique ids.
// A non-positive size falls back to DefaultPartitionSize.
func Partitions(names []string, size, firstIndex int) []Partition {
	if size <= 0 {
		size = DefaultPartitionSize
	}
	out := make([]Partition, 0, (len(names)+size-1)/size)
	for i := 0; i < len(names); i += size {
		end := min(i+size, len(names))
		streams := make([]string, end-i)
		copy(streams, names[i:end])
		out = append(out, Partition{Index: firstIndex + len(out), Streams: streams})
	}
	return out
}
