// Package health maintains the authoritative health state of every
// replica from periodic probes. It does not decide routing
// eligibility; the router composes health with the breaker state.
package health

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe"
)

const emptyScheduleInterval = 1 * time.Second

type Notifier interface {
	NotifyHealthChanged(models.HealthEvent)
}

type Monitor struct {
	settings Settings
	notifier Notifier
	executor *executor
	schedule *probeHeap

	mu      sync.RWMutex
	windows map[models.ReplicaID]*window
	probers map[models.ReplicaID]probe.Prober
}

func NewMonitor(settings Settings, notifier Notifier, concurrency uint16, buffer uint32) *Monitor {
	return &Monitor{
		settings: settings,
		notifier: notifier,
		executor: newExecutor(concurrency, buffer),
		schedule: newProbeHeap(nil),
		windows:  make(map[models.ReplicaID]*window),
		probers:  make(map[models.ReplicaID]probe.Prober),
	}
}

// Add registers a replica for monitoring. Idempotent.
func (m *Monitor) Add(id models.ReplicaID, prober probe.Prober) {
	m.mu.Lock()
	if _, exists := m.windows[id]; exists {
		m.mu.Unlock()
		return
	}
	m.windows[id] = newWindow(m.settings)
	m.probers[id] = prober
	m.mu.Unlock()

	m.schedule.push(probeTask{
		replica:    id,
		interval:   m.settings.Interval,
		nextInvoke: addIntervalWithJitter(m.settings.Interval),
	})
	log.Info().Msgf("added replica %s into probe schedule", id)
}

func (m *Monitor) Remove(id models.ReplicaID) {
	m.schedule.remove(id)

	m.mu.Lock()
	delete(m.windows, id)
	delete(m.probers, id)
	m.mu.Unlock()
}

// CurrentState is a non-blocking read of the last computed state.
// Unknown replicas read as Down so the router never picks them.
func (m *Monitor) CurrentState(id models.ReplicaID) models.HealthState {
	m.mu.RLock()
	wnd, ok := m.windows[id]
	m.mu.RUnlock()
	if !ok {
		return models.HealthDown
	}
	state, _ := wnd.current()
	return state
}

// LastError returns the error from the most recent failed probe.
func (m *Monitor) LastError(id models.ReplicaID) error {
	m.mu.RLock()
	wnd, ok := m.windows[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	_, err := wnd.current()
	return err
}

// Run drives the probe schedule until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.executor.Run()
	defer m.executor.Close()

	nextTask := m.schedule.getNext()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(invokeTimeOrDefault(nextTask))):
		}
		if nextTask == nil {
			nextTask = m.schedule.getNext()
			continue
		}
		err := m.dispatch(nextTask.replica)
		if err != nil {
			return fmt.Errorf("failed to dispatch probe: %w", err)
		}
		nextTask = m.schedule.updateAndGetTop()
	}
}

func (m *Monitor) dispatch(id models.ReplicaID) error {
	m.mu.RLock()
	wnd, ok := m.windows[id]
	prober := m.probers[id]
	m.mu.RUnlock()
	if !ok {
		// removed between scheduling and dispatch
		return nil
	}
	return m.executor.Execute(&probeJob{
		replica: id,
		prober:  prober,
		timeout: m.settings.ProbeTimeout,
		apply: func(res models.ProbeResult) {
			m.applyResult(wnd, res)
		},
	})
}

func (m *Monitor) applyResult(wnd *window, res models.ProbeResult) {
	prev, state, changed := wnd.apply(res)
	if !changed {
		return
	}
	log.Info().
		Str("replica", res.Replica.String()).
		Msgf("health transition %s -> %s", prev, state)
	m.notifier.NotifyHealthChanged(models.HealthEvent{
		Replica: res.Replica,
		From:    prev,
		To:      state,
		At:      res.At,
		LastErr: res.Err,
	})
}

func invokeTimeOrDefault(t *probeTask) time.Time {
	if t == nil {
		return time.Now().Add(emptyScheduleInterval)
	}
	return t.nextInvoke
}

func addIntervalWithJitter(interval time.Duration) time.Time {
	return time.Now().Add(interval + jit(interval))
}

func jit(interval time.Duration) time.Duration {
	return time.Duration(rand.Uint64N(uint64(interval)))
}
