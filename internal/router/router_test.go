package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/breaker"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/origin"
)

type staticHealth map[models.ReplicaID]models.HealthState

func (h staticHealth) CurrentState(id models.ReplicaID) models.HealthState {
	if state, ok := h[id]; ok {
		return state
	}
	return models.HealthHealthy
}

func (h staticHealth) LastError(id models.ReplicaID) error {
	if h[id] == models.HealthDown {
		return errProbeRefused
	}
	return nil
}

var errProbeRefused = errors.New("connection refused")

type failingOrigin struct{}

func (failingOrigin) Fetch(context.Context, string) (uint64, error) {
	return 0, origin.ErrUnavailable
}

func newTestRouter(t *testing.T, strategy StrategyName, health Health, fetcher origin.Fetcher) *Router {
	t.Helper()
	rt, err := New(Settings{
		Strategy:      strategy,
		Breaker:       breaker.DefaultSettings(),
		OriginTimeout: time.Second,
	}, health, fetcher, nil)
	require.NoError(t, err)
	return rt
}

func addReplicas(rt *Router, ids ...string) {
	for _, id := range ids {
		rt.AddReplica(models.Replica{
			ID:        models.ReplicaID(id),
			Capacity:  100,
			Weight:    1,
			CacheSize: 1000,
		})
	}
}

func TestRouteMissThenHit(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, origin.Static{Size: 10})
	addReplicas(rt, "A")

	req := models.NewRequest("movie.mp4", models.Coordinate{})
	decision := rt.Route(context.Background(), req)
	require.Equal(t, models.OutcomeMissFilled, decision.Outcome)
	require.Equal(t, models.ReplicaID("A"), decision.Replica)

	decision = rt.Route(context.Background(), models.NewRequest("movie.mp4", models.Coordinate{}))
	assert.Equal(t, models.OutcomeHit, decision.Outcome)
}

func TestRouteNoEligibleReplicaWhenAllDown(t *testing.T) {
	health := staticHealth{"A": models.HealthDown, "B": models.HealthDown}
	rt := newTestRouter(t, LeastConnections, health, origin.Static{Size: 10})
	addReplicas(rt, "A", "B")

	decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.OutcomeFailure, decision.Outcome)
	assert.Equal(t, models.ReasonNoEligibleReplica, decision.Reason)
	assert.Empty(t, decision.Replica)
}

func TestRouteNoEligibleReplicaWhenAllOpen(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, failingOrigin{})
	addReplicas(rt, "A")

	// 5 failed attempts trip A's breaker
	for range 5 {
		decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
		require.Equal(t, models.OutcomeFailure, decision.Outcome)
		require.Equal(t, models.ReasonOriginUnavailable, decision.Reason)
	}
	circuit, err := rt.CurrentCircuit("A")
	require.NoError(t, err)
	require.Equal(t, models.CircuitOpen, circuit)

	decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.ReasonNoEligibleReplica, decision.Reason)
}

func TestRouteOriginFailureIsNotRetriedElsewhere(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, failingOrigin{})
	addReplicas(rt, "A", "B")

	decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.OutcomeFailure, decision.Outcome)
	assert.Equal(t, models.ReasonOriginUnavailable, decision.Reason)
	assert.NotEmpty(t, decision.Replica, "the failed attempt names the replica it hit")

	// the failed attempt must not leak a connection slot
	for _, st := range rt.Snapshot() {
		assert.Zero(t, st.Connections)
	}
}

func TestRouteTracksConnectionsUntilRelease(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, origin.Static{Size: 10})
	addReplicas(rt, "A", "B")

	first := rt.Route(context.Background(), models.NewRequest("k1", models.Coordinate{}))
	require.Equal(t, models.OutcomeMissFilled, first.Outcome)

	// least-connections now steers the next request to the other replica
	second := rt.Route(context.Background(), models.NewRequest("k2", models.Coordinate{}))
	assert.NotEqual(t, first.Replica, second.Replica)

	require.NoError(t, rt.Release(first.Replica))
	require.NoError(t, rt.Release(second.Replica))
	for _, st := range rt.Snapshot() {
		assert.Zero(t, st.Connections)
	}

	assert.ErrorIs(t, rt.Release("missing"), ErrUnknownReplica)
}

func TestRouteSkipsDownReplica(t *testing.T) {
	health := staticHealth{"A": models.HealthDown}
	rt := newTestRouter(t, LeastConnections, health, origin.Static{Size: 10})
	addReplicas(rt, "A", "B")

	for range 5 {
		decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
		assert.Equal(t, models.ReplicaID("B"), decision.Replica)
	}
}

func TestRouteDegradedStillEligible(t *testing.T) {
	health := staticHealth{"A": models.HealthDegraded}
	rt := newTestRouter(t, LeastConnections, health, origin.Static{Size: 10})
	addReplicas(rt, "A")

	decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.OutcomeMissFilled, decision.Outcome)
	assert.Equal(t, models.ReplicaID("A"), decision.Replica)
}

func TestRouteCancelledOriginFetchSurfacesFailure(t *testing.T) {
	slow := origin.NewSimulated(origin.SimSettings{
		Latency: 500 * time.Millisecond,
		MinSize: 1,
		MaxSize: 10,
	})
	rt := newTestRouter(t, LeastConnections, staticHealth{}, slow)
	addReplicas(rt, "A")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	decision := rt.Route(ctx, models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.OutcomeFailure, decision.Outcome)
	assert.Equal(t, models.ReasonOriginUnavailable, decision.Reason)
	for _, st := range rt.Snapshot() {
		assert.Zero(t, st.Connections, "cancellation must not leak the connection slot")
	}
}

func TestInvalidateForcesNextMiss(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, origin.Static{Size: 10})
	addReplicas(rt, "A")

	decision := rt.Route(context.Background(), models.NewRequest("movie.mp4", models.Coordinate{}))
	require.Equal(t, models.OutcomeMissFilled, decision.Outcome)

	require.NoError(t, rt.Invalidate("A", "movie.mp4"))
	decision = rt.Route(context.Background(), models.NewRequest("movie.mp4", models.Coordinate{}))
	assert.Equal(t, models.OutcomeMissFilled, decision.Outcome, "invalidated key must miss again")

	assert.ErrorIs(t, rt.Invalidate("missing", "movie.mp4"), ErrUnknownReplica)
}

func TestRouteUncacheableContentIsOriginServed(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, origin.Static{Size: 5000})
	addReplicas(rt, "A") // cache size 1000, content 5000

	decision := rt.Route(context.Background(), models.NewRequest("blob", models.Coordinate{}))
	assert.Equal(t, models.OutcomeOriginServed, decision.Outcome)
	assert.Equal(t, models.ReplicaID("A"), decision.Replica)

	// the origin answered, so the attempt counts as a success
	circuit, err := rt.CurrentCircuit("A")
	require.NoError(t, err)
	assert.Equal(t, models.CircuitClosed, circuit)

	// nothing was stored: the same key misses again
	decision = rt.Route(context.Background(), models.NewRequest("blob", models.Coordinate{}))
	assert.Equal(t, models.OutcomeOriginServed, decision.Outcome)
	for _, st := range rt.Snapshot() {
		assert.Zero(t, st.Cache.Used)
	}
}

func TestSnapshotCarriesLastProbeError(t *testing.T) {
	health := staticHealth{"A": models.HealthDown}
	rt := newTestRouter(t, LeastConnections, health, origin.Static{Size: 10})
	addReplicas(rt, "A", "B")

	statuses := rt.Snapshot()
	require.Len(t, statuses, 2)
	assert.Equal(t, errProbeRefused.Error(), statuses[0].LastError)
	assert.Empty(t, statuses[1].LastError)
}

func TestRemoveReplicaDropsRuntimeState(t *testing.T) {
	rt := newTestRouter(t, LeastConnections, staticHealth{}, origin.Static{Size: 10})
	addReplicas(rt, "A", "B")

	rt.RemoveReplica("A")
	require.Len(t, rt.Snapshot(), 1)

	decision := rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	assert.Equal(t, models.ReplicaID("B"), decision.Replica)

	_, err := rt.CurrentCircuit("A")
	assert.ErrorIs(t, err, ErrUnknownReplica)
}

func TestRouterScenarioBreakerRecovery(t *testing.T) {
	// drive the breaker through open -> half-open -> closed using the
	// router's own record calls
	flaky := &switchableOrigin{err: origin.ErrUnavailable}
	settings := breaker.DefaultSettings()
	settings.Cooldown = time.Millisecond
	rt, err := New(Settings{
		Strategy:      LeastConnections,
		Breaker:       settings,
		OriginTimeout: time.Second,
	}, staticHealth{}, flaky, nil)
	require.NoError(t, err)
	addReplicas(rt, "A")

	for range 5 {
		rt.Route(context.Background(), models.NewRequest("k", models.Coordinate{}))
	}
	circuit, _ := rt.CurrentCircuit("A")
	require.Equal(t, models.CircuitOpen, circuit)

	time.Sleep(5 * time.Millisecond)
	flaky.setErr(nil)
	decision := rt.Route(context.Background(), models.NewRequest("k2", models.Coordinate{}))
	require.Equal(t, models.OutcomeMissFilled, decision.Outcome)

	circuit, _ = rt.CurrentCircuit("A")
	assert.Equal(t, models.CircuitClosed, circuit)
}

type switchableOrigin struct {
	mu  sync.Mutex
	err error
}

func (o *switchableOrigin) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *switchableOrigin) Fetch(context.Context, string) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	return 10, nil
}
