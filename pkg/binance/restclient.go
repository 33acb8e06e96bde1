package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const statusTrading = "TRADING"

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetTradingSymbols fetches the futures exchange info and returns, in listing
// order, every symbol quoted in quoteAsset whose status is TRADING.
func (c *RESTClient) GetTradingSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	endpoint := c.baseURL + "/fapi/v1/exchangeInfo"

	var info ExchangeInfoResponse
	if err := c.getJSON(ctx, "exchangeInfo", endpoint, &info); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(info.Symbols))
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset != quoteAsset || s.Status != statusTrading || seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

// GetKlines fetches the latest `limit` candles for one symbol and interval.
func (c *RESTClient) GetKlines(ctx context.Context, symbol string, interval Interval, limit int) ([]Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/fapi/v1/klines?" + q.Encode()

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, "klines", endpoint, &rows); err != nil {
		return nil, err
	}
	return ParseKlineList(symbol, interval, rows), nil
}

func (c *RESTClient) getJSON(ctx context.Context, op, endpoint string, out any) error {
	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Op: op, URL: endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Op: op, URL: endpoint, Err: fmt.Errorf("making request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			err = fmt.Errorf("code %d: %s", apiErr.Code, apiErr.Msg)
		} else {
			err = errors.New(string(body))
		}
		return &FetchError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
