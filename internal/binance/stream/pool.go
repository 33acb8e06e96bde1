package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool runs one Supervisor per partition. A partition failing never disturbs
// its siblings.
type Pool struct {
	cfg    SupervisorConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closing atomic.Bool
	open    atomic.Int64

	mu          sync.Mutex
	supervisors []*Supervisor
	nextIndex   int
}

// NewPool creates a pool bound to ctx; cancelling ctx is equivalent to Close.
func NewPool(ctx context.Context, cfg SupervisorConfig) *Pool {
	p := &Pool{cfg: cfg, logger: cfg.Logger}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	userHook := cfg.OnStateChange
	p.cfg.OnStateChange = func(partition int, from, to State) {
		if to == StateOpen {
			p.open.Add(1)
		} else if from == StateOpen {
			p.open.Add(-1)
		}
		if userHook != nil {
			userHook(partition, from, to)
		}
	}
	p.cfg.Stopping = p.closing.Load
	return p
}

// AddStreams partitions names and starts a supervisor for each new partition.
// Partition indexes continue from the previous call.
func (p *Pool) AddStreams(names []string, size int) []Partition {
	if len(names) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closing.Load() {
		p.mu.Unlock()
		return nil
	}
	partitions := Partitions(names, size, p.nextIndex)
	p.nextIndex += len(partitions)
	started := make([]*Supervisor, 0, len(partitions))
	for _, part := range partitions {
		s := NewSupervisor(part, p.cfg)
		p.supervisors = append(p.supervisors, s)
		started = append(started, s)
	}
	p.wg.Add(len(started))
	p.mu.Unlock()

	for _, s := range started {
		go func() {
			defer p.wg.Done()
			s.Run(p.ctx)
		}()
	}

	p.logger.Info("partitions started", zap.Int("partitions", len(partitions)), zap.Int("streams", len(names)))
	return partitions
}

// Supervisors returns the running supervisors in partition order.
func (p *Pool) Supervisors() []*Supervisor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Supervisor, len(p.supervisors))
	copy(out, p.supervisors)
	return out
}

// OpenConnections returns the number of partitions currently open.
func (p *Pool) OpenConnections() int {
	return int(p.open.Load())
}

// IsInitialized reports whether at least one connection is open.
func (p *Pool) IsInitialized() bool {
	return p.OpenConnections() > 0
}

// Close stops reconnecting, closes every connection and waits for the supervisors to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closing.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.cancel()
	for _, s := range p.Supervisors() {
		s.Close()
	}
	p.wg.Wait()
	p.logger.Info("stream pool closed")
}
