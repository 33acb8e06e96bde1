package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futuresscreener/internal/binance/collector"
	"futuresscreener/internal/binance/memorystore"
	"futuresscreener/pkg/binance"
	"futuresscreener/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, status collector.Status) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memorystore.NewMarketStore()
	store.Register("BTCUSDT", "ETHUSDT")
	store.Apply("BTCUSDT", binance.Kline{Symbol: "BTCUSDT", Interval: "5m", Open: "100", Close: "106"})

	h := NewHandler(func() collector.Status { return status }, store)
	return NewRouter(h, zap.NewNop())
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

// go test -v --run TestHealth
func TestHealth(t *testing.T) {
	w := get(newTestRouter(t, collector.Status{}), "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// go test -v --run TestStatus
func TestStatus(t *testing.T) {
	r := newTestRouter(t, collector.Status{Initialized: true, OpenConnections: 3, Partitions: 3, Symbols: 2})
	w := get(r, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got collector.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Initialized || got.OpenConnections != 3 || got.Symbols != 2 {
		t.Errorf("unexpected status: %+v", got)
	}
}

// go test -v --run TestMarket
func TestMarket(t *testing.T) {
	w := get(newTestRouter(t, collector.Status{}), "/api/market")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Count   int `json:"count"`
		Symbols []struct {
			Symbol    string            `json:"symbol"`
			Changes   map[string]string `json:"changes"`
			LastPrice *string           `json:"lastPrice"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Symbols[0].Symbol != "BTCUSDT" || body.Symbols[0].Changes["5m"] != "6.00" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
	if body.Symbols[0].LastPrice == nil || *body.Symbols[0].LastPrice != "106" {
		t.Errorf("unexpected last price: %s", w.Body.String())
	}
	if body.Symbols[1].LastPrice != nil {
		t.Errorf("ETHUSDT has no price yet: %s", w.Body.String())
	}
}

// go test -v --run TestMarketSymbol
func TestMarketSymbol(t *testing.T) {
	r := newTestRouter(t, collector.Status{})

	if w := get(r, "/api/market/btcusdt"); w.Code != http.StatusOK {
		t.Errorf("expected 200 for lower-case symbol, got %d", w.Code)
	}
	if w := get(r, "/api/market/DOGEUSDT"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type fakeLister struct {
	err     error
	records []postgres.AlertRecord

	symbol string
	since  time.Time
	limit  int
}

func (f *fakeLister) ListAlerts(_ context.Context, symbol string, since time.Time, limit int) ([]postgres.AlertRecord, error) {
	f.symbol, f.since, f.limit = symbol, since, limit
	return f.records, f.err
}

func newAlertRouter(t *testing.T, lister AlertLister) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(func() collector.Status { return collector.Status{} }, memorystore.NewMarketStore())
	if lister != nil {
		h.WithAlerts(lister)
	}
	return NewRouter(h, zap.NewNop())
}

// go test -v --run TestAlerts
func TestAlerts(t *testing.T) {
	lister := &fakeLister{records: []postgres.AlertRecord{{
		EventID:   "4b0c9a6e-3f9e-4d6e-9d35-8b7f1a1c2d3e",
		Symbol:    "BTCUSDT",
		Interval:  "5m",
		Direction: "above",
		Change:    decimal.RequireFromString("6.25"),
		Threshold: decimal.NewFromInt(5),
		FiredAt:   time.Now(),
	}}}
	r := newAlertRouter(t, lister)

	w := get(r, "/api/alerts?symbol=btcusdt&since=1h&limit=5000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if lister.symbol != "BTCUSDT" || lister.limit != maxAlertLimit {
		t.Errorf("unexpected query: symbol=%q limit=%d", lister.symbol, lister.limit)
	}
	if age := time.Since(lister.since); age < time.Hour || age > time.Hour+time.Minute {
		t.Errorf("since should be about 1h ago, got %v", age)
	}

	var body struct {
		Count  int `json:"count"`
		Alerts []struct {
			EventID string `json:"eventId"`
			Change  string `json:"change"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Alerts[0].Change != "6.25" || body.Alerts[0].EventID == "" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	get(r, "/api/alerts")
	if lister.symbol != "" || lister.limit != defaultAlertLimit {
		t.Errorf("unexpected defaults: symbol=%q limit=%d", lister.symbol, lister.limit)
	}
}

// go test -v --run TestAlertsErrors
func TestAlertsErrors(t *testing.T) {
	if w := get(newAlertRouter(t, nil), "/api/alerts"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a journal, got %d", w.Code)
	}

	r := newAlertRouter(t, &fakeLister{})
	for _, path := range []string{"/api/alerts?since=yesterday", "/api/alerts?since=-1h", "/api/alerts?limit=0", "/api/alerts?limit=x"} {
		if w := get(r, path); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}

	failing := newAlertRouter(t, &fakeLister{err: errors.New("connection refused")})
	if w := get(failing, "/api/alerts"); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// go test -v --run TestIntervals
func TestIntervals(t *testing.T) {
	w := get(newTestRouter(t, collector.Status{}), "/api/intervals")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []intervalInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 11 || got[0].Interval != binance.Interval5m || !got[0].Short || got[0].Seconds != 300 {
		t.Fatalf("unexpected intervals: %s", w.Body.String())
	}
	if last := got[len(got)-1]; last.Interval != binance.Interval1M || last.Short {
		t.Errorf("1M must be last and long: %+v", last)
	}
}
