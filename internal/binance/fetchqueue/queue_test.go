package fetchqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitAll(t *testing.T, futures []*Future) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			t.Fatalf("future %d did not resolve", i)
		}
	}
}

// go test -v --run TestQueueDrainsInBatches
func TestQueueDrainsInBatches(t *testing.T) {
	q := New(context.Background(), 100, 100*time.Millisecond, zap.NewNop())

	var mu sync.Mutex
	starts := make([]time.Time, 150)
	ends := make([]time.Time, 150)

	tasks := make([]Task, 150)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			mu.Lock()
			starts[i] = time.Now()
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			ends[i] = time.Now()
			mu.Unlock()
			return nil
		}
	}

	waitAll(t, q.EnqueueAll(tasks...))

	if got := q.Batches(); got != 2 {
		t.Fatalf("expected 2 batches, got %d", got)
	}

	var lastFirstBatchEnd time.Time
	for i := 0; i < 100; i++ {
		if ends[i].After(lastFirstBatchEnd) {
			lastFirstBatchEnd = ends[i]
		}
	}
	for i := 100; i < 150; i++ {
		if gap := starts[i].Sub(lastFirstBatchEnd); gap < 100*time.Millisecond {
			t.Fatalf("task %d started %v after the first batch, want >= 100ms", i, gap)
		}
	}
}

// go test -v --run TestQueueNoDelayAfterLastBatch
func TestQueueNoDelayAfterLastBatch(t *testing.T) {
	q := New(context.Background(), 10, time.Hour, zap.NewNop())

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error { return nil }
	}

	start := time.Now()
	waitAll(t, q.EnqueueAll(tasks...))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("single batch should not wait the batch interval, took %v", elapsed)
	}

	// The dispatcher goes idle; a later enqueue must start a new one.
	deadline := time.Now().Add(5 * time.Second)
	for q.Running() {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher did not go idle")
		}
		time.Sleep(time.Millisecond)
	}
	waitAll(t, []*Future{q.Enqueue(func(ctx context.Context) error { return nil })})
	if q.Batches() != 2 {
		t.Errorf("expected 2 batches, got %d", q.Batches())
	}
}

// go test -v --run TestQueueIsolatesFailures
func TestQueueIsolatesFailures(t *testing.T) {
	q := New(context.Background(), 100, time.Millisecond, zap.NewNop())
	boom := errors.New("boom")

	var ok atomic.Int32
	futures := q.EnqueueAll(
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { panic("malformed payload") },
		func(ctx context.Context) error { ok.Add(1); return nil },
		func(ctx context.Context) error { ok.Add(1); return nil },
	)
	waitAll(t, futures)

	if !errors.Is(futures[0].Err(), boom) {
		t.Errorf("expected boom, got %v", futures[0].Err())
	}
	if futures[1].Err() == nil {
		t.Error("expected panic to surface as an error")
	}
	if ok.Load() != 2 {
		t.Errorf("expected 2 successful tasks, got %d", ok.Load())
	}
}

// go test -v --run TestQueueBoundsConcurrency
func TestQueueBoundsConcurrency(t *testing.T) {
	q := New(context.Background(), 20, 5*time.Millisecond, zap.NewNop())

	var inFlight, peak atomic.Int32
	task := func(ctx context.Context) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var mu sync.Mutex
	var futures []*Future
	var wg sync.WaitGroup
	for c := 0; c < 10; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				f := q.Enqueue(task)
				mu.Lock()
				futures = append(futures, f)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	waitAll(t, futures)

	if peak.Load() > 20 {
		t.Errorf("peak concurrency %d exceeds batch size 20", peak.Load())
	}
}

// go test -v --run TestQueueAbandonsOnCancel
func TestQueueAbandonsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(ctx, 1, time.Hour, zap.NewNop())

	release := make(chan struct{})
	futures := q.EnqueueAll(
		func(ctx context.Context) error { <-release; return nil },
		func(ctx context.Context) error { return nil },
	)

	cancel()
	close(release)
	waitAll(t, futures)

	if !errors.Is(futures[1].Err(), context.Canceled) {
		t.Errorf("expected pending task to be abandoned, got %v", futures[1].Err())
	}
}
