package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"futuresscreener/config"
	"futuresscreener/internal/binance/crossing"
	"futuresscreener/internal/binance/fetchqueue"
	"futuresscreener/internal/binance/memorystore"
	"futuresscreener/internal/binance/snapshot"
	"futuresscreener/internal/binance/stream"
	"futuresscreener/internal/binance/symbolmeta"
	"futuresscreener/pkg/binance"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const statsInterval = 30 * time.Second

// Notifier accepts crossing events without blocking. *alert.Dispatcher satisfies it.
type Notifier interface {
	Send(ev crossing.Event) bool
}

// Options overrides the exchange clients; nil fields use the configured
// Binance endpoints.
type Options struct {
	Symbols  snapshot.SymbolFetcher
	Klines   snapshot.KlineFetcher
	Dialer   binance.Dialer
	Notifier Notifier
}

// Status is the aggregate health of the pipeline.
type Status struct {
	Initialized     bool  `json:"initialized"`
	OpenConnections int   `json:"openConnections"`
	Partitions      int   `json:"partitions"`
	Symbols         int   `json:"symbols"`
	CrossingKeys    int   `json:"crossingKeys"`
	PendingFetches  int   `json:"pendingFetches"`
	Alerts          int64 `json:"alerts"`
	AlertsDropped   int64 `json:"alertsDropped"`
}

// Collector runs the ingestion pipeline for Binance USDT perpetuals: universe
// resolution, REST seeding, partitioned kline streams, the market table and
// crossing detection.
type Collector struct {
	cfg    *config.Config
	logger *zap.Logger

	intervals      []binance.Interval
	alertIntervals map[binance.Interval]bool

	store    *memorystore.MarketStore
	detector *crossing.Detector
	queue    *fetchqueue.Queue
	pool     *stream.Pool
	loader   *snapshot.SymbolLoader
	seeder   *snapshot.Seeder
	notifier Notifier

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	alerts  atomic.Int64
	dropped atomic.Int64
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) (*Collector, error) {
	intervals, err := binance.ParseIntervals(cfg.Market.Intervals)
	if err != nil {
		return nil, fmt.Errorf("market.intervals: %w", err)
	}
	alertIntervals, err := binance.ParseIntervals(cfg.Alert.Intervals)
	if err != nil {
		return nil, fmt.Errorf("alert.intervals: %w", err)
	}

	if opts.Symbols == nil || opts.Klines == nil {
		rest := binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout)
		if opts.Symbols == nil {
			opts.Symbols = rest
		}
		if opts.Klines == nil {
			opts.Klines = rest
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = binance.NewWSDialer(cfg.Binance.WS.URL, cfg.Binance.WS.HandshakeTimeout)
	}

	c := &Collector{
		cfg:            cfg,
		logger:         logger,
		intervals:      intervals,
		alertIntervals: make(map[binance.Interval]bool, len(alertIntervals)),
		store:          memorystore.NewMarketStore(),
		detector:       crossing.NewDetector(decimal.NewFromFloat(cfg.Alert.Threshold)),
		notifier:       opts.Notifier,
	}
	for _, interval := range alertIntervals {
		c.alertIntervals[interval] = true
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.queue = fetchqueue.New(c.ctx, cfg.Seed.BatchSize, cfg.Seed.BatchInterval, logger.Named("fetchqueue"))
	c.loader = &snapshot.SymbolLoader{
		Fetcher:    opts.Symbols,
		QuoteAsset: cfg.Market.QuoteAsset,
		Timeout:    cfg.Binance.REST.Timeout,
		RetryDelay: cfg.Binance.WS.ReconnectDelay,
		Logger:     logger.Named("symbols"),
	}
	c.seeder = &snapshot.Seeder{
		Fetcher:  opts.Klines,
		Queue:    c.queue,
		Ingestor: c,
		Limit:    cfg.Seed.Limit,
		Logger:   logger.Named("seed"),
	}
	c.pool = stream.NewPool(c.ctx, stream.SupervisorConfig{
		Dialer:      opts.Dialer,
		Handler:     stream.MakeMessageHandler(c),
		Policy:      reconnectPolicy(cfg.Binance.WS),
		ReadTimeout: cfg.Binance.WS.ReadTimeout,
		Logger:      logger.Named("stream"),
	})
	return c, nil
}

func reconnectPolicy(ws config.WSConfig) stream.ReconnectPolicy {
	if ws.Backoff == "exponential" {
		return stream.ExponentialBackoff{Base: ws.ReconnectDelay, Max: ws.MaxReconnectDelay}
	}
	return stream.FixedDelay(ws.ReconnectDelay)
}

// Run resolves the universe, starts seeding and streaming, and blocks until
// ctx is done or Close is called.
func (c *Collector) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("collector already running")
	}
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	defer c.pool.Close()

	symbols, err := c.loader.Resolve(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("resolve universe: %w", err)
	}
	c.addSymbols(symbols)

	var wg conc.WaitGroup
	refresher := &symbolmeta.Scheduler{
		Every:  c.cfg.Symbols.RefreshInterval,
		Load:   c.loader.LoadSymbols,
		Logger: c.logger.Named("symbolmeta"),
	}
	wg.Go(func() { refresher.Run(c.ctx, c.addSymbols) })

	if c.cfg.Seed.Poll {
		poller := &snapshot.Poller{
			Seeder:    c.seeder,
			Symbols:   c.store.Symbols,
			Intervals: c.intervals,
			Logger:    c.logger.Named("poll"),
		}
		wg.Go(func() { poller.Run(c.ctx) })
	}
	wg.Go(func() { c.logStats(c.ctx) })

	<-c.ctx.Done()
	c.pool.Close()
	wg.Wait()
	c.logger.Info("collector stopped")
	return nil
}

// Close stops streaming, reconnects and pending fetches. Safe to call more than once.
func (c *Collector) Close() {
	c.cancel()
	c.pool.Close()
}

// addSymbols registers symbols not yet tracked, seeds them and opens
// partitions for their streams only.
func (c *Collector) addSymbols(symbols []string) {
	added := c.store.Register(symbols...)
	if len(added) == 0 {
		return
	}
	c.logger.Info("universe extended", zap.Int("added", len(added)), zap.Int("total", c.store.Len()))

	if c.cfg.Seed.Enabled {
		c.seeder.Seed(added, c.intervals)
	}
	c.pool.AddStreams(stream.StreamNames(added, c.intervals), c.cfg.Binance.WS.StreamsPerConnection)
}

// Ingest applies one candle to the market table and, for alerting intervals,
// feeds its raw percent change to the crossing detector. Seed candles and
// stream candles take the same path.
func (c *Collector) Ingest(symbol string, k binance.Kline) {
	if !c.store.Apply(symbol, k) {
		return
	}
	interval := binance.Interval(k.Interval)
	if !c.cfg.Alert.Enabled || !c.alertIntervals[interval] {
		return
	}

	change, err := k.PercentChange()
	if err != nil {
		return
	}
	ev, ok := c.detector.Observe(symbol, interval, change)
	if !ok {
		return
	}

	c.alerts.Add(1)
	if c.notifier != nil && !c.notifier.Send(ev) {
		c.dropped.Add(1)
	}
}

func (c *Collector) Store() *memorystore.MarketStore { return c.store }

func (c *Collector) Detector() *crossing.Detector { return c.detector }

func (c *Collector) Status() Status {
	return Status{
		Initialized:     c.pool.IsInitialized(),
		OpenConnections: c.pool.OpenConnections(),
		Partitions:      len(c.pool.Supervisors()),
		Symbols:         c.store.Len(),
		CrossingKeys:    c.detector.Len(),
		PendingFetches:  c.queue.Pending(),
		Alerts:          c.alerts.Load(),
		AlertsDropped:   c.dropped.Load(),
	}
}

func (c *Collector) logStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Status()
			c.logger.Info("collector stats",
				zap.Int("symbols", s.Symbols),
				zap.Int("open_connections", s.OpenConnections),
				zap.Int("partitions", s.Partitions),
				zap.Int("crossing_keys", s.CrossingKeys),
				zap.Int("pending_fetches", s.PendingFetches),
				zap.Int64("alerts", s.Alerts),
			)
		}
	}
}
