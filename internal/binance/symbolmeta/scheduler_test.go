package symbolmeta

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// go test -v --run TestNextRun
func TestNextRun(t *testing.T) {
	now := time.Date(2024, 3, 10, 17, 45, 0, 0, time.UTC)

	if got := NextRun(now, 0); !got.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next UTC midnight, got %v", got)
	}
	if got := NextRun(now, 15*time.Minute); !got.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected now+15m, got %v", got)
	}

	// a non-UTC clock still lands on UTC midnight
	seoul := time.FixedZone("KST", 9*3600)
	local := time.Date(2024, 3, 11, 8, 0, 0, 0, seoul) // 23:00 UTC on the 10th
	if got := NextRun(local, 0); !got.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2024-03-11T00:00Z, got %v", got)
	}
}

// go test -v --run TestSchedulerRunsPeriodically
func TestSchedulerRunsPeriodically(t *testing.T) {
	var loads, procs atomic.Int32
	s := &Scheduler{
		Every: 5 * time.Millisecond,
		Load: func(ctx context.Context) ([]string, error) {
			if loads.Add(1) == 2 {
				return nil, errors.New("exchange unavailable")
			}
			return []string{"BTCUSDT"}, nil
		},
		Logger: zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(symbols []string) { procs.Add(1) })
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for procs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 refreshes, got %d", procs.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	// the failed load is skipped, not processed
	if procs.Load() >= loads.Load() {
		t.Errorf("failed load must not reach proc: loads=%d procs=%d", loads.Load(), procs.Load())
	}
}

// go test -v --run TestSchedulerDisabled
func TestSchedulerDisabled(t *testing.T) {
	s := &Scheduler{
		Every:  -1,
		Load:   func(ctx context.Context) ([]string, error) { t.Error("unexpected load"); return nil, nil },
		Logger: zap.NewNop(),
	}
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), func([]string) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler must return immediately")
	}
}
