package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"futuresscreener/config"
	"futuresscreener/internal/binance/crossing"
	"futuresscreener/pkg/binance"

	"go.uber.org/zap"
)

type blockingConn struct {
	once   sync.Once
	closed chan struct{}
}

func (c *blockingConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, context.Canceled
}

func (c *blockingConn) SetReadDeadline(time.Time) error { return nil }

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type recordingDialer struct {
	mu    sync.Mutex
	dials [][]string
}

func (d *recordingDialer) Dial(_ context.Context, streams []string) (binance.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, append([]string(nil), streams...))
	d.mu.Unlock()
	return &blockingConn{closed: make(chan struct{})}, nil
}

func (d *recordingDialer) streams() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.dials...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []crossing.Event
}

func (n *recordingNotifier) Send(ev crossing.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return true
}

func (n *recordingNotifier) all() []crossing.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]crossing.Event(nil), n.events...)
}

func fakeREST(t *testing.T) *binance.RESTClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(`{"symbols":[
				{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT"},
				{"symbol":"ETHUSDT","status":"TRADING","quoteAsset":"USDT"}]}`))
		case "/fapi/v1/klines":
			if r.URL.Query().Get("symbol") == "BTCUSDT" {
				w.Write([]byte(`[[1000,"100","0","0","106","0",1999]]`))
				return
			}
			w.Write([]byte(`[[1000,"100","0","0","101","0",1999]]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return binance.NewRESTClient(srv.URL, 5*time.Second)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Market.Intervals = []string{"5m", "1h"}
	cfg.Alert.Intervals = []string{"5m"}
	cfg.Binance.WS.StreamsPerConnection = 3
	cfg.Binance.WS.ReconnectDelay = 10 * time.Millisecond
	cfg.Symbols.RefreshInterval = -1
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// go test -v --run TestCollectorSeedsStreamsAndAlerts
func TestCollectorSeedsStreamsAndAlerts(t *testing.T) {
	rest := fakeREST(t)
	dialer := &recordingDialer{}
	notifier := &recordingNotifier{}

	c, err := New(testConfig(t), zap.NewNop(), Options{Symbols: rest, Klines: rest, Dialer: dialer, Notifier: notifier})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	waitFor(t, "initialized", func() bool { return c.Status().Initialized && c.Status().OpenConnections == 2 })
	waitFor(t, "seed", func() bool {
		for _, row := range c.Store().Snapshot() {
			if len(row.Changes) != 2 {
				return false
			}
		}
		return true
	})

	btc, _ := c.Store().Get("BTCUSDT")
	if got, _ := btc.Change(binance.Interval5m); got != "6.00" {
		t.Errorf("expected BTCUSDT 5m 6.00, got %q", got)
	}
	if btc.LastPrice.Decimal.String() != "106" {
		t.Errorf("expected last price 106, got %s", btc.LastPrice.Decimal)
	}

	// only BTCUSDT 5m is outside the band on an alerting interval
	waitFor(t, "alert", func() bool { return len(notifier.all()) == 1 })
	ev := notifier.all()[0]
	if ev.Symbol != "BTCUSDT" || ev.Interval != binance.Interval5m || ev.Direction != crossing.Above {
		t.Errorf("unexpected event: %+v", ev)
	}

	want := [][]string{
		{"btcusdt@kline_5m", "btcusdt@kline_1h", "ethusdt@kline_5m"},
		{"ethusdt@kline_1h"},
	}
	got := dialer.streams()
	if len(got) != 2 {
		t.Fatalf("expected 2 dials, got %v", got)
	}
	// partitions connect concurrently
	if !reflect.DeepEqual(got, want) && !reflect.DeepEqual(got, [][]string{want[1], want[0]}) {
		t.Errorf("unexpected partitions: %v", got)
	}

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if c.Status().OpenConnections != 0 {
		t.Error("connections must be closed")
	}
}

// go test -v --run TestCollectorIngestHysteresis
func TestCollectorIngestHysteresis(t *testing.T) {
	notifier := &recordingNotifier{}
	c, err := New(testConfig(t), zap.NewNop(), Options{Symbols: fakeREST(t), Klines: fakeREST(t), Dialer: &recordingDialer{}, Notifier: notifier})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.store.Register("BTCUSDT")

	candle := func(interval, close string) binance.Kline {
		return binance.Kline{Symbol: "BTCUSDT", Interval: interval, Open: "100", Close: close}
	}

	c.Ingest("BTCUSDT", candle("5m", "106")) // 6.00 from 0: above
	c.Ingest("BTCUSDT", candle("5m", "107")) // 7.00: stays outside
	c.Ingest("BTCUSDT", candle("5m", "104")) // 4.00: re-armed
	c.Ingest("BTCUSDT", candle("5m", "94"))  // -6.00: below
	c.Ingest("BTCUSDT", candle("1h", "110")) // not an alerting interval
	c.Ingest("DOGEUSDT", binance.Kline{Symbol: "DOGEUSDT", Interval: "5m", Open: "1", Close: "2"})

	events := notifier.all()
	if len(events) != 2 || events[0].Direction != crossing.Above || events[1].Direction != crossing.Below {
		t.Fatalf("expected above then below, got %+v", events)
	}

	// 6 -> 5.004 -> 6: the raw 5.004 stays outside the band, so no second alert
	c.Ingest("BTCUSDT", candle("5m", "104")) // re-arm
	c.Ingest("BTCUSDT", candle("5m", "106"))
	c.Ingest("BTCUSDT", candle("5m", "105.004"))
	c.Ingest("BTCUSDT", candle("5m", "106"))
	if n := len(notifier.all()); n != 3 {
		t.Errorf("expected one alert for 6 -> 5.004 -> 6, got %d events", n-2)
	}
	row, _ := c.Store().Get("BTCUSDT")
	if got, _ := row.Change(binance.Interval5m); got != "6.00" {
		t.Errorf("unexpected stored change %q", got)
	}

	// -5.004 from inside the band crosses below even though it is stored as -5.00
	c.Ingest("BTCUSDT", candle("5m", "100"))
	c.Ingest("BTCUSDT", candle("5m", "94.996"))
	events = notifier.all()
	if len(events) != 4 || events[3].Direction != crossing.Below {
		t.Fatalf("-5.004 should fire below, got %+v", events)
	}
	row, _ = c.Store().Get("BTCUSDT")
	if got, _ := row.Change(binance.Interval5m); got != "-5.00" {
		t.Errorf("unexpected stored change %q", got)
	}

	if got, _ := row.Change(binance.Interval1h); got != "10.00" {
		t.Errorf("non-alerting interval must still be stored, got %q", got)
	}
	if _, ok := c.Store().Get("DOGEUSDT"); ok {
		t.Error("unknown symbol must not create a row")
	}
	if s := c.Status(); s.Alerts != 4 || s.CrossingKeys != 1 {
		t.Errorf("unexpected status: %+v", s)
	}
}

// go test -v --run TestCollectorAlertingDisabled
func TestCollectorAlertingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alert.Enabled = false
	notifier := &recordingNotifier{}
	c, err := New(cfg, zap.NewNop(), Options{Symbols: fakeREST(t), Klines: fakeREST(t), Dialer: &recordingDialer{}, Notifier: notifier})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.store.Register("BTCUSDT")

	c.Ingest("BTCUSDT", binance.Kline{Symbol: "BTCUSDT", Interval: "5m", Open: "100", Close: "120"})
	if len(notifier.all()) != 0 || c.Detector().Len() != 0 {
		t.Error("detector must not run when alerting is disabled")
	}
}

// go test -v --run TestCollectorAddSymbolsOnlyNew
func TestCollectorAddSymbolsOnlyNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.Seed.Enabled = false
	dialer := &recordingDialer{}
	c, err := New(cfg, zap.NewNop(), Options{Symbols: fakeREST(t), Klines: fakeREST(t), Dialer: dialer})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.addSymbols([]string{"BTCUSDT"})
	c.addSymbols([]string{"BTCUSDT", "SOLUSDT"})
	waitFor(t, "two partitions", func() bool { return len(dialer.streams()) == 2 })

	parts := c.pool.Supervisors()
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	if got := parts[1].Partition().Streams; !reflect.DeepEqual(got, []string{"solusdt@kline_5m", "solusdt@kline_1h"}) {
		t.Errorf("refresh must only subscribe new symbols, got %v", got)
	}
	if parts[1].Partition().Index != 1 {
		t.Errorf("expected partition index 1, got %d", parts[1].Partition().Index)
	}
}

// go test -v --run TestNewRejectsBadIntervals
func TestNewRejectsBadIntervals(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market.Intervals = []string{"5m", "3m"}
	if _, err := New(cfg, zap.NewNop(), Options{}); err == nil {
		t.Error("expected error for unsupported interval")
	}
}
