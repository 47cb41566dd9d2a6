package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

var errProbe = errors.New("connection refused")

func newTestWindow(now *time.Time) *window {
	w := newWindow(DefaultSettings())
	w.now = func() time.Time { return *now }
	return w
}

func probeOK(latency time.Duration) models.ProbeResult {
	return models.ProbeResult{Success: true, Latency: latency}
}

func probeFail() models.ProbeResult {
	return models.ProbeResult{Success: false, Err: errProbe}
}

func TestWindowConsecutiveFailuresForceDown(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	// the one explicit skip-rule: a burst of 3 consecutive failures
	// forces Down directly from Healthy
	_, _, changed := w.apply(probeFail())
	assert.False(t, changed)
	_, _, changed = w.apply(probeFail())
	assert.False(t, changed)

	prev, next, changed := w.apply(probeFail())
	require.True(t, changed)
	assert.Equal(t, models.HealthHealthy, prev)
	assert.Equal(t, models.HealthDown, next)
}

func TestWindowDegradedOnPartialFailures(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	// 2 failures out of 5 = 40%: degraded but not down, and no
	// failure streak long enough to force down
	w.apply(probeFail())
	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeFail())
	w.apply(probeOK(10 * time.Millisecond))

	prev, next, changed := w.apply(probeOK(time.Second))
	require.True(t, changed)
	assert.Equal(t, models.HealthHealthy, prev)
	assert.Equal(t, models.HealthDegraded, next)
}

func TestWindowRecoversAfterThreeGoodProbes(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	w.apply(probeFail())
	w.apply(probeOK(2 * time.Second)) // slow success, no recovery credit
	w.apply(probeFail())
	w.apply(probeOK(time.Second))
	w.apply(probeOK(time.Second))
	require.Equal(t, models.HealthDegraded, w.state)

	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeOK(10 * time.Millisecond))
	_, next, changed := w.apply(probeOK(10 * time.Millisecond))
	require.True(t, changed)
	assert.Equal(t, models.HealthHealthy, next)
}

func TestWindowDownIsStickyForDwellTime(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	w.apply(probeFail())
	w.apply(probeFail())
	w.apply(probeFail())
	require.Equal(t, models.HealthDown, w.state)

	// three good probes inside the dwell window must not recover
	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeOK(10 * time.Millisecond))
	_, _, changed := w.apply(probeOK(10 * time.Millisecond))
	assert.False(t, changed)
	assert.Equal(t, models.HealthDown, w.state)

	// after the dwell elapses the same evidence recovers
	now = now.Add(11 * time.Second)
	_, next, changed := w.apply(probeOK(10 * time.Millisecond))
	require.True(t, changed)
	assert.Equal(t, models.HealthHealthy, next)
}

func TestWindowFiveConsecutiveFailures(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	transitions := []models.HealthState{}
	for range 5 {
		_, next, changed := w.apply(probeFail())
		if changed {
			transitions = append(transitions, next)
		}
	}

	// Healthy -> Down with no intermediate Degraded persisting
	assert.Equal(t, []models.HealthState{models.HealthDown}, transitions)
}

func TestWindowSlowSuccessBreaksRecoveryStreak(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	w.apply(probeFail())
	w.apply(probeFail())
	w.apply(probeFail())
	require.Equal(t, models.HealthDown, w.state)

	now = now.Add(11 * time.Second)
	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeOK(2 * time.Second)) // above nominal bound
	w.apply(probeOK(10 * time.Millisecond))
	assert.Equal(t, models.HealthDown, w.state)

	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeOK(10 * time.Millisecond))
	assert.Equal(t, models.HealthHealthy, w.state)
}

func TestWindowSingleLostProbeDoesNotFlap(t *testing.T) {
	now := time.Now()
	w := newTestWindow(&now)

	w.apply(probeOK(10 * time.Millisecond))
	w.apply(probeFail())
	for range 10 {
		_, _, changed := w.apply(probeOK(10 * time.Millisecond))
		assert.False(t, changed)
	}
	assert.Equal(t, models.HealthHealthy, w.state)
}
