package router

import (
	"fmt"
	"sync"

	"github.com/lafikl/consistent"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/geo"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type StrategyName string

const (
	WeightedRoundRobin StrategyName = "weighted_round_robin"
	LeastConnections   StrategyName = "least_connections"
	GeoProximity       StrategyName = "geo_proximity"
	HealthBased        StrategyName = "health_based"
	CacheAffinity      StrategyName = "cache_affinity"
)

// Candidate is one eligible replica presented to a strategy,
// sorted by id ascending.
type Candidate struct {
	ID          models.ReplicaID
	Meta        models.Replica
	Connections int64
	Health      models.HealthState
}

// Strategy ranks the candidate set and picks one replica. Strategies
// must be deterministic: the same sequence of calls over the same
// candidate sets yields the same sequence of choices.
type Strategy interface {
	Name() StrategyName
	Pick(req models.Request, cands []Candidate) models.ReplicaID
}

// membership is implemented by strategies that keep per-fleet state.
type membership interface {
	AddReplica(id models.ReplicaID)
	RemoveReplica(id models.ReplicaID)
}

func NewStrategy(name StrategyName) (Strategy, error) {
	switch name {
	case WeightedRoundRobin:
		return newWRRStrategy(), nil
	case LeastConnections:
		return leastConnStrategy{}, nil
	case GeoProximity:
		return geoStrategy{}, nil
	case HealthBased:
		return healthBasedStrategy{}, nil
	case CacheAffinity:
		return newAffinityStrategy(), nil
	}
	return nil, fmt.Errorf("unknown routing strategy: %s", name)
}

// wrrStrategy is a smooth weighted round-robin: each pick advances a
// deterministic per-replica current weight, no randomness involved.
type wrrStrategy struct {
	mu             sync.Mutex
	currentWeights map[models.ReplicaID]int64
}

func newWRRStrategy() *wrrStrategy {
	return &wrrStrategy{
		currentWeights: make(map[models.ReplicaID]int64),
	}
}

func (s *wrrStrategy) Name() StrategyName { return WeightedRoundRobin }

func (s *wrrStrategy) Pick(_ models.Request, cands []Candidate) models.ReplicaID {
	if len(cands) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var totalWeight int64
	for _, cand := range cands {
		totalWeight += int64(cand.Meta.Weight)
	}
	if totalWeight == 0 {
		// all weights collapsed, first candidate by id
		return cands[0].ID
	}

	var (
		chosen    models.ReplicaID
		maxWeight int64
		seenAny   bool
	)
	for _, cand := range cands {
		s.currentWeights[cand.ID] += int64(cand.Meta.Weight)
		if !seenAny || s.currentWeights[cand.ID] > maxWeight {
			maxWeight = s.currentWeights[cand.ID]
			chosen = cand.ID
			seenAny = true
		}
	}
	s.currentWeights[chosen] -= totalWeight
	return chosen
}

func (s *wrrStrategy) AddReplica(models.ReplicaID) {}

func (s *wrrStrategy) RemoveReplica(id models.ReplicaID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.currentWeights, id)
}

type leastConnStrategy struct{}

func (leastConnStrategy) Name() StrategyName { return LeastConnections }

// Pick selects the candidate with minimum connection count. The
// candidate slice arrives id-sorted, so ties break by id ascending.
func (leastConnStrategy) Pick(_ models.Request, cands []Candidate) models.ReplicaID {
	return pickLeastConnections(cands)
}

func pickLeastConnections(cands []Candidate) models.ReplicaID {
	if len(cands) == 0 {
		return ""
	}
	best := cands[0]
	for _, cand := range cands[1:] {
		if cand.Connections < best.Connections {
			best = cand
		}
	}
	return best.ID
}

type geoStrategy struct{}

func (geoStrategy) Name() StrategyName { return GeoProximity }

// Pick minimizes great-circle distance from the client; ties break by
// id ascending via the strict comparison over the sorted slice.
func (geoStrategy) Pick(req models.Request, cands []Candidate) models.ReplicaID {
	if len(cands) == 0 {
		return ""
	}
	best := cands[0]
	bestDist := geo.Distance(req.Client, best.Meta.Location)
	for _, cand := range cands[1:] {
		d := geo.Distance(req.Client, cand.Meta.Location)
		if d < bestDist {
			best = cand
			bestDist = d
		}
	}
	return best.ID
}

type healthBasedStrategy struct{}

func (healthBasedStrategy) Name() StrategyName { return HealthBased }

// Pick prefers Healthy replicas over Degraded ones and falls back to
// least-connections inside the chosen tier.
func (healthBasedStrategy) Pick(_ models.Request, cands []Candidate) models.ReplicaID {
	if len(cands) == 0 {
		return ""
	}
	healthy := make([]Candidate, 0, len(cands))
	for _, cand := range cands {
		if cand.Health == models.HealthHealthy {
			healthy = append(healthy, cand)
		}
	}
	if len(healthy) > 0 {
		return pickLeastConnections(healthy)
	}
	return pickLeastConnections(cands)
}

// affinityStrategy consistent-hashes the content key over the fleet
// so one key keeps hitting the same replica's cache. When the mapped
// replica is not currently eligible it falls back to
// least-connections over the eligible set.
type affinityStrategy struct {
	mu   sync.Mutex
	ring *consistent.Consistent
}

func newAffinityStrategy() *affinityStrategy {
	return &affinityStrategy{
		ring: consistent.New(),
	}
}

func (s *affinityStrategy) Name() StrategyName { return CacheAffinity }

func (s *affinityStrategy) Pick(req models.Request, cands []Candidate) models.ReplicaID {
	if len(cands) == 0 {
		return ""
	}
	s.mu.Lock()
	host, err := s.ring.Get(req.Key)
	s.mu.Unlock()
	if err == nil {
		mapped := models.ReplicaID(host)
		for _, cand := range cands {
			if cand.ID == mapped {
				return mapped
			}
		}
	}
	return pickLeastConnections(cands)
}

func (s *affinityStrategy) AddReplica(id models.ReplicaID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Add(id.String())
}

func (s *affinityStrategy) RemoveReplica(id models.ReplicaID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Remove(id.String())
}
