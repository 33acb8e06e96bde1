package stream

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectPolicy returns the wait before reconnect attempt n (1-based) since
// the last successful open.
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same duration before every reconnect, forever.
type FixedDelay time.Duration

func (f FixedDelay) Delay(int) time.Duration { return time.Duration(f) }

// ExponentialBackoff doubles the delay per consecutive failure up to Max and
// adds up to 20% jitter. Max <= 0 means no cap.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// growth stops here so doubling and jitter cannot overflow
const maxUncapped = time.Duration(math.MaxInt64 / 4)

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = maxUncapped
	}
	d := b.Base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return addJitter(d)
}

func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/5+1))
}
