// Package router selects a replica for every incoming content
// request, composing replica health with per-replica circuit breaker
// admission, and reports the cache outcome of the attempt.
package router

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/breaker"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/cache"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/metrics"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/origin"
)

var ErrUnknownReplica = errors.New("unknown replica")

type Health interface {
	CurrentState(models.ReplicaID) models.HealthState
	LastError(models.ReplicaID) error
}

type Settings struct {
	Strategy      StrategyName
	Breaker       breaker.Settings
	OriginTimeout time.Duration
}

// replicaState is the runtime state owned by one replica: connection
// count, circuit breaker and cache, all guarded locally so routing
// never takes a cross-replica lock.
type replicaState struct {
	mu    sync.Mutex
	meta  models.Replica
	conns int64

	breaker *breaker.Breaker
	cache   *cache.LRU
}

func (s *replicaState) addConn() {
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
}

func (s *replicaState) releaseConn() {
	s.mu.Lock()
	if s.conns > 0 {
		s.conns--
	}
	s.mu.Unlock()
}

func (s *replicaState) connections() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

type Router struct {
	mu       sync.RWMutex
	replicas map[models.ReplicaID]*replicaState
	order    []models.ReplicaID

	strategy Strategy
	health   Health
	origin   origin.Fetcher
	metrics  metrics.Metrics
	settings Settings
}

func New(settings Settings, health Health, originFetcher origin.Fetcher, m metrics.Metrics) (*Router, error) {
	strategy, err := NewStrategy(settings.Strategy)
	if err != nil {
		return nil, err
	}
	if settings.OriginTimeout == 0 {
		settings.OriginTimeout = 2 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Router{
		replicas: make(map[models.ReplicaID]*replicaState),
		strategy: strategy,
		health:   health,
		origin:   originFetcher,
		metrics:  m,
		settings: settings,
	}, nil
}

// AddReplica creates the replica's runtime state (breaker, cache,
// connection counter). Idempotent for an already known id.
func (r *Router) AddReplica(meta models.Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.replicas[meta.ID]; exists {
		r.replicas[meta.ID].meta = meta
		return
	}
	r.replicas[meta.ID] = &replicaState{
		meta:    meta,
		breaker: breaker.New(r.settings.Breaker),
		cache:   cache.NewLRU(meta.CacheSize),
	}
	index, _ := slices.BinarySearch(r.order, meta.ID)
	r.order = slices.Insert(r.order, index, meta.ID)

	if m, ok := r.strategy.(membership); ok {
		m.AddReplica(meta.ID)
	}
}

// RemoveReplica drops the replica and its runtime state entirely.
func (r *Router) RemoveReplica(id models.ReplicaID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.replicas[id]; !exists {
		return
	}
	delete(r.replicas, id)
	index, found := slices.BinarySearch(r.order, id)
	if found {
		r.order = slices.Delete(r.order, index, index+1)
	}
	if m, ok := r.strategy.(membership); ok {
		m.RemoveReplica(id)
	}
}

// Route picks a replica for the request and resolves the cache
// outcome. The failure outcome is always surfaced, never dropped.
func (r *Router) Route(ctx context.Context, req models.Request) models.RoutingDecision {
	start := time.Now()
	decision := models.RoutingDecision{
		RequestID: req.ID,
		Strategy:  string(r.strategy.Name()),
	}

	chosen := r.admit(req)
	if chosen == nil {
		decision.Outcome = models.OutcomeFailure
		decision.Reason = models.ReasonNoEligibleReplica
		decision.Latency = time.Since(start)
		r.metrics.Increment("route.no_eligible_replica")
		return decision
	}
	decision.Replica = chosen.meta.ID

	chosen.addConn()

	if chosen.cache.Lookup(req.Key) {
		chosen.breaker.RecordSuccess()
		decision.Outcome = models.OutcomeHit
		decision.Latency = time.Since(start)
		r.metrics.Increment("route.hit")
		r.metrics.Duration("route.latency", decision.Latency)
		return decision
	}

	// single origin-fetch attempt per request; retry policy belongs
	// to the caller
	fetchCtx, cancel := context.WithTimeout(ctx, r.settings.OriginTimeout)
	defer cancel()

	size, err := r.origin.Fetch(fetchCtx, req.Key)
	if err != nil {
		chosen.breaker.RecordFailure()
		// the caller never got the replica, give the slot back
		chosen.releaseConn()
		decision.Outcome = models.OutcomeFailure
		decision.Reason = models.ReasonOriginUnavailable
		decision.Latency = time.Since(start)
		r.metrics.Increment("route.origin_unavailable")
		return decision
	}

	chosen.breaker.RecordSuccess()
	decision.Outcome = models.OutcomeMissFilled

	err = chosen.cache.Insert(req.Key, size)
	if err != nil {
		// content larger than the whole cache: served from origin but
		// never cacheable on this replica
		log.Warn().Err(err).
			Str("replica", chosen.meta.ID.String()).
			Msgf("cannot cache key %s (size %d)", req.Key, size)
		decision.Outcome = models.OutcomeOriginServed
		r.metrics.Increment("route.origin_served")
	} else {
		r.metrics.Increment("route.miss_filled")
	}

	decision.Latency = time.Since(start)
	r.metrics.Duration("route.latency", decision.Latency)
	return decision
}

// admit builds the eligible candidate set, lets the strategy rank it
// and claims breaker admission for the chosen replica. A replica
// whose half-open trial slot was lost to a concurrent request is
// excluded and the pick repeats over the remaining candidates.
func (r *Router) admit(req models.Request) *replicaState {
	excluded := make(map[models.ReplicaID]bool)
	for {
		cands, states := r.eligible(excluded)
		if len(cands) == 0 {
			return nil
		}
		id := r.strategy.Pick(req, cands)
		if id == "" {
			return nil
		}
		st := states[id]
		if st.breaker.Allow() {
			return st
		}
		excluded[id] = true
	}
}

func (r *Router) eligible(excluded map[models.ReplicaID]bool) ([]Candidate, map[models.ReplicaID]*replicaState) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cands := make([]Candidate, 0, len(r.order))
	states := make(map[models.ReplicaID]*replicaState, len(r.order))
	for _, id := range r.order {
		if excluded[id] {
			continue
		}
		st := r.replicas[id]
		health := r.health.CurrentState(id)
		if health == models.HealthDown {
			continue
		}
		if !st.breaker.CanAttempt() {
			continue
		}
		cands = append(cands, Candidate{
			ID:          id,
			Meta:        st.meta,
			Connections: st.connections(),
			Health:      health,
		})
		states[id] = st
	}
	return cands, states
}

// Release signals request completion and returns the connection slot.
func (r *Router) Release(id models.ReplicaID) error {
	r.mu.RLock()
	st, ok := r.replicas[id]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownReplica
	}
	st.releaseConn()
	return nil
}

// CurrentCircuit is a read-only view for the monitoring collaborator.
func (r *Router) CurrentCircuit(id models.ReplicaID) (models.CircuitState, error) {
	r.mu.RLock()
	st, ok := r.replicas[id]
	r.mu.RUnlock()
	if !ok {
		return "", ErrUnknownReplica
	}
	return st.breaker.State(), nil
}

// Invalidate removes a key from one replica's cache.
func (r *Router) Invalidate(id models.ReplicaID, key string) error {
	r.mu.RLock()
	st, ok := r.replicas[id]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownReplica
	}
	st.cache.Invalidate(key)
	return nil
}

// ReplicaStatus is the introspection view served to the dashboard.
type ReplicaStatus struct {
	ID          models.ReplicaID
	Location    models.Coordinate
	Health      models.HealthState
	Circuit     models.CircuitState
	Connections int64
	Cache       cache.Stats
	// LastError is the most recent failed probe error, empty while
	// the replica answers.
	LastError string
}

func (r *Router) Snapshot() []ReplicaStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ReplicaStatus, 0, len(r.order))
	for _, id := range r.order {
		st := r.replicas[id]
		var lastErr string
		if err := r.health.LastError(id); err != nil {
			lastErr = err.Error()
		}
		statuses = append(statuses, ReplicaStatus{
			ID:          id,
			Location:    st.meta.Location,
			Health:      r.health.CurrentState(id),
			Circuit:     st.breaker.State(),
			Connections: st.connections(),
			Cache:       st.cache.Stats(),
			LastError:   lastErr,
		})
	}
	return statuses
}
