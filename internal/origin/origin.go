// Package origin abstracts the authoritative content source that is
// consulted when a replica cache misses.
package origin

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrUnavailable is the transient origin failure surfaced to the
// router as an OriginUnavailable routing outcome.
var ErrUnavailable = errors.New("origin unavailable")

// Fetcher retrieves content metadata from the origin. Implementations
// must honor ctx; the router bounds every fetch with a timeout.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (size uint64, err error)
}

type SimSettings struct {
	Latency     time.Duration
	FailureRate float64
	MinSize     uint64
	MaxSize     uint64
	Seed        uint64
}

// Simulated models the origin with configurable latency and failure
// injection. Sizes and failures come from a seeded generator keyed by
// nothing but call order, so a fixed request sequence reproduces.
type Simulated struct {
	mu       sync.Mutex
	rng      *rand.Rand
	settings SimSettings
}

func NewSimulated(settings SimSettings) *Simulated {
	if settings.MaxSize == 0 {
		settings.MaxSize = 100
	}
	if settings.MinSize == 0 {
		settings.MinSize = 1
	}
	return &Simulated{
		rng:      rand.New(rand.NewPCG(settings.Seed, settings.Seed)),
		settings: settings,
	}
}

func (o *Simulated) Fetch(ctx context.Context, key string) (uint64, error) {
	o.mu.Lock()
	failed := o.rng.Float64() < o.settings.FailureRate
	size := o.settings.MinSize + o.rng.Uint64N(o.settings.MaxSize-o.settings.MinSize+1)
	o.mu.Unlock()

	if o.settings.Latency > 0 {
		select {
		case <-time.After(o.settings.Latency):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if failed {
		return 0, ErrUnavailable
	}
	return size, nil
}

// Static always serves fixed-size content and never fails. Useful in
// tests and as a neutral default.
type Static struct {
	Size uint64
}

func (o Static) Fetch(ctx context.Context, key string) (uint64, error) {
	return o.Size, nil
}
