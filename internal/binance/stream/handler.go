package stream

import (
	"errors"

	"futuresscreener/pkg/binance"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

const klineEventType = "kline"

// Ingestor consumes decoded kline events.
type Ingestor interface {
	Ingest(symbol string, k binance.Kline)
}

// IngestFunc adapts a function to Ingestor.
type IngestFunc func(symbol string, k binance.Kline)

func (f IngestFunc) Ingest(symbol string, k binance.Kline) { f(symbol, k) }

// MessageHandler handles one raw frame; a returned error is logged by the
// supervisor and never closes the connection.
type MessageHandler func(msg []byte) error

// MakeMessageHandler returns a handler that decodes combined-stream frames and
// forwards kline events to ingestor. Other event types are ignored.
func MakeMessageHandler(ingestor Ingestor) MessageHandler {
	return func(msg []byte) error {
		var envelope binance.StreamEnvelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			return &MessageParseError{Frame: truncate(msg), Err: err}
		}
		if len(envelope.Data) == 0 {
			return nil // subscription responses and other non-stream frames
		}

		// Early filter on the event type before decoding the kline payload
		if json.Get(envelope.Data, "e").ToString() != klineEventType {
			return nil
		}

		var event binance.KlineEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			return &MessageParseError{Frame: truncate(msg), Err: err}
		}
		if event.Symbol == "" || event.Kline.Interval == "" {
			return &MessageParseError{Frame: truncate(msg), Err: errors.New("kline event without symbol or interval")}
		}

		ingestor.Ingest(event.Symbol, event.Kline)
		return nil
	}
}
