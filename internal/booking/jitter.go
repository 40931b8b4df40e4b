package booking

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces out interactive actions. It is never used to wait for page state.
type Pacer interface {
	Pause(ctx context.Context) error
}

const (
	DefaultJitterMin = 1000 * time.Millisecond
	DefaultJitterMax = 3000 * time.Millisecond
)

// Jitter sleeps for a uniformly random duration in [Min, Max].
type Jitter struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewJitter(min, max time.Duration) *Jitter {
	if max < min {
		min, max = max, min
	}
	return &Jitter{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSeededJitter is NewJitter with a fixed seed.
func NewSeededJitter(min, max time.Duration, seed int64) *Jitter {
	j := NewJitter(min, max)
	j.rng = rand.New(rand.NewSource(seed))
	return j
}

// Next samples the next delay.
func (j *Jitter) Next() time.Duration {
	span := j.Max - j.Min
	if span <= 0 {
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Min + time.Duration(j.rng.Int63n(int64(span)+1))
}

func (j *Jitter) Pause(ctx context.Context) error {
	t := time.NewTimer(j.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPause is a Pacer that returns immediately.
type NoPause struct{}

func (NoPause) Pause(ctx context.Context) error { return ctx.Err() }
