package binance

import "encoding/json"

// ExchangeInfoResponse is the subset of /fapi/v1/exchangeInfo used to resolve the universe.
type ExchangeInfoResponse struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol       string `json:"symbol"`       // e.g., "BTCUSDT"
	Status       string `json:"status"`       // e.g., "TRADING", "SETTLING"
	BaseAsset    string `json:"baseAsset"`    // e.g., "BTC"
	QuoteAsset   string `json:"quoteAsset"`   // e.g., "USDT"
	ContractType string `json:"contractType"` // e.g., "PERPETUAL"
}

// APIError is the error body Binance returns with non-2xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// StreamEnvelope wraps every frame received on a combined stream connection.
type StreamEnvelope struct {
	Stream string          `json:"stream"` // e.g., "btcusdt@kline_5m"
	Data   json.RawMessage `json:"data"`
}

// KlineEvent is the payload of a kline stream frame.
type KlineEvent struct {
	EventType string `json:"e"` // "kline"
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     Kline  `json:"k"`
}

// Kline is the latest candle snapshot for one symbol and interval. Seed candles
// from REST leave the trade-derived fields zeroed.
type Kline struct {
	OpenTime            int64  `json:"t"` // Start time of the kline (ms since epoch)
	CloseTime           int64  `json:"T"` // End time of the kline (ms since epoch)
	Symbol              string `json:"s"`
	Interval            string `json:"i"`
	FirstTradeID        int64  `json:"f"`
	LastTradeID         int64  `json:"L"`
	Open                string `json:"o"`
	Close               string `json:"c"`
	High                string `json:"h"`
	Low                 string `json:"l"`
	Volume              string `json:"v"` // Base asset volume
	TradeCount          int64  `json:"n"`
	IsClosed            bool   `json:"x"` // Whether the kline is finalized
	QuoteVolume         string `json:"q"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
}
