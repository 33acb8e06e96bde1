package alert

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"futuresscreener/internal/binance/crossing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sink delivers one alert to a notification transport.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev crossing.Event) error
}

type DispatcherConfig struct {
	QueueSize     int
	RatePerSecond float64 // 0 = unlimited
	Burst         int
	SendTimeout   time.Duration
}

// Dispatcher decouples alerting from ingestion: Send only enqueues, and a
// single worker delivers each event to every sink in turn.
type Dispatcher struct {
	sinks   []Sink
	queue   chan crossing.Event
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex // guards cancel and started
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
	closed  atomic.Bool

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan crossing.Event, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.SendTimeout,
		logger:  logger,
	}
}

// Start launches the delivery worker. It stops when ctx is done or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed.Load() {
		return
	}
	d.started = true
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.work(ctx)
}

// Send enqueues ev without blocking. It returns false if the queue is full or
// the dispatcher is closed; the event is then dropped.
func (d *Dispatcher) Send(ev crossing.Event) bool {
	if d.closed.Load() {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("alert queue full, dropping alert",
			zap.String("symbol", ev.Symbol), zap.String("interval", string(ev.Interval)))
		return false
	}
}

// Close stops the worker. Events still queued are discarded.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Sent returns the number of events delivered to at least one sink.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed returns the number of failed sink deliveries.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

func (d *Dispatcher) Pending() int { return len(d.queue) }

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, ev crossing.Event) {
	delivered := false
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(parent, d.timeout)
		err := d.sendOne(ctx, sink, ev)
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.logger.Warn("alert dispatch failed", zap.Error(err))
			continue
		}
		delivered = true
	}
	if delivered {
		d.sent.Add(1)
	}
}

// sendOne turns a panicking sink into a DispatchError.
func (d *Dispatcher) sendOne(ctx context.Context, sink Sink, ev crossing.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Sink: sink.Name(), EventID: ev.ID.String(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := sink.Send(ctx, ev); err != nil {
		return &DispatchError{Sink: sink.Name(), EventID: ev.ID.String(), Err: err}
	}
	return nil
}
