package health

import (
	"sync"
	"time"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type Settings struct {
	// WindowSize is how many probe results feed the failure rate.
	// Rate-based transitions wait for a full window so one lost
	// probe cannot flap the state.
	WindowSize int
	// DegradedRate and DownRate are window failure-rate cutoffs.
	DegradedRate float64
	DownRate     float64
	// ConsecutiveFailures forces Down regardless of the window.
	ConsecutiveFailures int
	// ConsecutiveSuccesses within NominalLatency recover to Healthy.
	ConsecutiveSuccesses int
	NominalLatency       time.Duration
	// DownDwell keeps a replica Down for a minimum time before
	// re-evaluation is allowed.
	DownDwell time.Duration

	Interval     time.Duration
	ProbeTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		WindowSize:           5,
		DegradedRate:         0.2,
		DownRate:             0.6,
		ConsecutiveFailures:  3,
		ConsecutiveSuccesses: 3,
		NominalLatency:       500 * time.Millisecond,
		DownDwell:            10 * time.Second,
		Interval:             5 * time.Second,
		ProbeTimeout:         2 * time.Second,
	}
}

// window tracks one replica's recent probe results and derives its
// health state. Results for a single replica are applied under the
// guard, in arrival order.
type window struct {
	guard    sync.RWMutex
	settings Settings

	state   models.HealthState
	results []models.ProbeResult
	head    int
	count   int

	consecFail int
	// consecGood counts consecutive successes within the nominal
	// latency bound; a slow success breaks the recovery streak but
	// still counts as a success for the failure rate.
	consecGood int

	downSince time.Time
	lastErr   error

	now func() time.Time
}

func newWindow(settings Settings) *window {
	return &window{
		settings: settings,
		state:    models.HealthHealthy,
		results:  make([]models.ProbeResult, settings.WindowSize),
		now:      time.Now,
	}
}

// apply folds one probe result into the window and reports whether
// the health state changed.
func (w *window) apply(res models.ProbeResult) (prevState, nextState models.HealthState, changed bool) {
	w.guard.Lock()
	defer w.guard.Unlock()

	w.push(res)
	if res.Success {
		w.consecFail = 0
		if res.Latency <= w.settings.NominalLatency {
			w.consecGood++
		} else {
			w.consecGood = 0
		}
		w.lastErr = nil
	} else {
		w.consecFail++
		w.consecGood = 0
		w.lastErr = res.Err
	}

	prev := w.state
	next := w.evaluate()
	if next == prev {
		return prev, prev, false
	}
	if next == models.HealthDown {
		w.downSince = w.now()
	}
	w.state = next
	return prev, next, true
}

func (w *window) evaluate() models.HealthState {
	// Down is sticky for the dwell time, transitions out are not
	// even evaluated until it elapses.
	if w.state == models.HealthDown && w.now().Sub(w.downSince) < w.settings.DownDwell {
		return models.HealthDown
	}

	if w.consecGood >= w.settings.ConsecutiveSuccesses {
		return models.HealthHealthy
	}
	if w.consecFail >= w.settings.ConsecutiveFailures {
		return models.HealthDown
	}
	if w.count >= w.settings.WindowSize {
		rate := w.failureRate()
		if rate >= w.settings.DownRate {
			return models.HealthDown
		}
		if rate >= w.settings.DegradedRate && w.state == models.HealthHealthy {
			return models.HealthDegraded
		}
	}
	return w.state
}

func (w *window) push(res models.ProbeResult) {
	w.results[w.head] = res
	w.head = (w.head + 1) % len(w.results)
	if w.count < len(w.results) {
		w.count++
	}
}

func (w *window) failureRate() float64 {
	failures := 0
	for i := range w.count {
		if !w.results[i].Success {
			failures++
		}
	}
	return float64(failures) / float64(w.count)
}

func (w *window) current() (models.HealthState, error) {
	w.guard.RLock()
	defer w.guard.RUnlock()
	return w.state, w.lastErr
}
