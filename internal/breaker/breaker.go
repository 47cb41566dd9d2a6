// Package breaker gates routing attempts to a replica based on the
// outcomes the router observed itself, independent of proactive
// health probing.
package breaker

import (
	"sync"
	"time"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type Settings struct {
	// WindowSize is how many recent attempt outcomes are kept.
	WindowSize int
	// MinAttempts must be reached before the failure rate can trip.
	MinAttempts int
	// FailureRate in [0..1] over the window that trips the breaker.
	FailureRate float64
	// Cooldown is the base open duration; it doubles on every failed
	// half-open trial, bounded by MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		WindowSize:  10,
		MinAttempts: 5,
		FailureRate: 0.5,
		Cooldown:    30 * time.Second,
		MaxCooldown: 5 * time.Minute,
	}
}

// Breaker is a per-replica circuit breaker. All transitions happen
// under its own mutex; there is no cross-replica locking.
type Breaker struct {
	mu       sync.Mutex
	settings Settings

	state models.CircuitState

	// rolling window of attempt outcomes, true = failure
	window []bool
	head   int
	count  int

	openedAt time.Time
	cooldown time.Duration

	now func() time.Time
}

func New(settings Settings) *Breaker {
	if settings.WindowSize <= 0 {
		settings = DefaultSettings()
	}
	return &Breaker{
		settings: settings,
		state:    models.CircuitClosed,
		window:   make([]bool, settings.WindowSize),
		cooldown: settings.Cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a routing attempt may be admitted. While
// half-open exactly one trial is in flight; concurrent callers are
// rejected, not blocked.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		// cool-down elapsed: admit a single trial
		b.state = models.CircuitHalfOpen
		return true
	case models.CircuitHalfOpen:
		return false
	}
	return false
}

// CanAttempt reports whether Allow could currently admit an attempt
// without claiming the half-open trial slot. The router uses it to
// build the candidate set and only calls Allow on the chosen replica.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		return b.now().Sub(b.openedAt) >= b.cooldown
	}
	return false
}

// RecordSuccess marks the current attempt as succeeded. A successful
// half-open trial fully closes the breaker and resets the backoff.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitClosed:
		b.push(false)
	case models.CircuitHalfOpen:
		b.state = models.CircuitClosed
		b.reset()
	}
}

// RecordFailure marks the current attempt as failed, tripping the
// breaker when the windowed failure rate crosses the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitClosed:
		b.push(true)
		if b.count < b.settings.MinAttempts {
			return
		}
		if b.failureRate() >= b.settings.FailureRate {
			b.trip()
		}
	case models.CircuitHalfOpen:
		// trial failed, back off harder
		b.cooldown = min(2*b.cooldown, b.settings.MaxCooldown)
		b.trip()
	}
}

func (b *Breaker) State() models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.state = models.CircuitOpen
	b.openedAt = b.now()
	b.head = 0
	b.count = 0
}

func (b *Breaker) reset() {
	b.head = 0
	b.count = 0
	b.cooldown = b.settings.Cooldown
}

func (b *Breaker) push(failure bool) {
	b.window[b.head] = failure
	b.head = (b.head + 1) % len(b.window)
	if b.count < len(b.window) {
		b.count++
	}
}

func (b *Breaker) failureRate() float64 {
	failures := 0
	for i := range b.count {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.count)
}
