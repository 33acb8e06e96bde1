package fetchqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 100
	DefaultBatchInterval = 100 * time.Millisecond
)

// Task is one outbound request. Its error is logged by the queue and never
// aborts the batch it runs in.
type Task func(ctx context.Context) error

// Future resolves once its task has run (or was abandoned on shutdown).
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the task's error. Only valid after Done is closed.
func (f *Future) Err() error { return f.err }

// Wait blocks until the task has run or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type item struct {
	task   Task
	future *Future
}

// Queue admits any number of tasks and runs them in batches of at most
// batchSize, fully in parallel, pausing batchInterval between batches while
// work remains. At most one dispatcher goroutine exists at a time.
type Queue struct {
	ctx           context.Context
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	pending []item
	running bool
	batches int
}

// New creates a queue whose tasks receive ctx. Cancelling ctx abandons pending tasks.
func New(ctx context.Context, batchSize int, batchInterval time.Duration, logger *zap.Logger) *Queue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchInterval < 0 {
		batchInterval = DefaultBatchInterval
	}
	return &Queue{
		ctx:           ctx,
		batchSize:     batchSize,
		batchInterval: batchInterval,
		logger:        logger,
	}
}

// Enqueue adds one task and starts the dispatcher if it is idle.
func (q *Queue) Enqueue(task Task) *Future {
	return q.EnqueueAll(task)[0]
}

// EnqueueAll adds every task atomically, so they are batched together.
func (q *Queue) EnqueueAll(tasks ...Task) []*Future {
	futures := make([]*Future, len(tasks))
	q.mu.Lock()
	for i, task := range tasks {
		f := &Future{done: make(chan struct{})}
		futures[i] = f
		q.pending = append(q.pending, item{task: task, future: f})
	}
	start := !q.running && len(q.pending) > 0
	if start {
		q.running = true
	}
	q.mu.Unlock()

	if start {
		go q.dispatch()
	}
	return futures
}

// Pending returns the number of tasks waiting for a batch.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running reports whether a dispatcher is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Batches returns how many batches have been dispatched so far.
func (q *Queue) Batches() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batches
}

func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		n := min(q.batchSize, len(q.pending))
		batch := make([]item, n)
		copy(batch, q.pending[:n])
		q.pending = q.pending[n:]
		q.batches++
		q.mu.Unlock()

		if q.ctx.Err() != nil {
			q.abandon(batch)
			continue
		}

		var wg conc.WaitGroup
		for _, it := range batch {
			wg.Go(func() { q.run(it) })
		}
		wg.Wait()

		if q.Pending() == 0 {
			continue
		}

		timer := time.NewTimer(q.batchInterval)
		select {
		case <-timer.C:
		case <-q.ctx.Done():
			timer.Stop()
		}
	}
}

func (q *Queue) run(it item) {
	defer close(it.future.done)
	defer func() {
		if r := recover(); r != nil {
			it.future.err = fmt.Errorf("task panicked: %v", r)
			q.logger.Error("fetch task panicked", zap.Any("panic", r))
		}
	}()

	if err := it.task(q.ctx); err != nil {
		it.future.err = err
		q.logger.Warn("fetch task failed", zap.Error(err))
	}
}

func (q *Queue) abandon(batch []item) {
	for _, it := range batch {
		it.future.err = q.ctx.Err()
		close(it.future.done)
	}
}
