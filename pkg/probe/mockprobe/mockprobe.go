// Package mockprobe simulates a probe transport for replicas that
// exist only inside the simulation. Outcomes are drawn from a seeded
// generator so repeated runs see the same probe sequence.
package mockprobe

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

var ErrSimulatedFailure = errors.New("simulated probe failure")

type Settings struct {
	// FailureRate in [0..1] is the chance a probe fails.
	FailureRate float64       `json:"failure_rate"`
	Latency     time.Duration `json:"latency"`
	Seed        uint64        `json:"seed"`
}

type MockProbe struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	latency     time.Duration
}

func New(settings *Settings) *MockProbe {
	return &MockProbe{
		rng:         rand.New(rand.NewPCG(settings.Seed, settings.Seed)),
		failureRate: settings.FailureRate,
		latency:     settings.Latency,
	}
}

func (p *MockProbe) Probe(ctx context.Context) error {
	p.mu.Lock()
	failed := p.rng.Float64() < p.failureRate
	p.mu.Unlock()

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failed {
		return ErrSimulatedFailure
	}
	return nil
}
