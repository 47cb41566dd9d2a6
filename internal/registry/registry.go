// Package registry holds the known replica fleet and its static
// metadata. The routing core only ever reads snapshots from it.
package registry

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type InMemRegistry struct {
	mu       sync.Mutex
	replicas map[models.ReplicaID]models.Replica
}

func NewInMemory() *InMemRegistry {
	return &InMemRegistry{
		replicas: make(map[models.ReplicaID]models.Replica, 128),
	}
}

// Register adds or updates a replica. Returns false when the replica
// was already known with identical metadata.
func (r *InMemRegistry) Register(replica models.Replica) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.replicas[replica.ID]
	if exists && prev == replica {
		return false
	}
	r.replicas[replica.ID] = replica
	log.Info().Msgf("replica %s registered", replica.ID)
	return true
}

func (r *InMemRegistry) Deregister(id models.ReplicaID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.replicas[id]; !exists {
		return false
	}
	delete(r.replicas, id)
	log.Warn().Msgf("replica %s deregistered", id)
	return true
}

func (r *InMemRegistry) Get(id models.ReplicaID) (models.Replica, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replica, ok := r.replicas[id]
	return replica, ok
}

// List returns an immutable snapshot sorted by replica id.
func (r *InMemRegistry) List() []models.Replica {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Replica, 0, len(r.replicas))
	for _, replica := range r.replicas {
		result = append(result, replica)
	}
	slices.SortFunc(result, func(a, b models.Replica) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return result
}
