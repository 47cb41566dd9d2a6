// Package fleet applies replica registration changes to every
// component that keeps per-replica state: the registry, the router
// and the health monitor.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe/mockprobe"
)

type Registry interface {
	Register(models.Replica) bool
	Deregister(models.ReplicaID) bool
}

type RouterFleet interface {
	AddReplica(models.Replica)
	RemoveReplica(models.ReplicaID)
}

type MonitorFleet interface {
	Add(models.ReplicaID, probe.Prober)
	Remove(models.ReplicaID)
}

// ProbeConfig selects the probe transport used for new replicas.
// Replicas without a network address always get the mock strategy.
type ProbeConfig struct {
	Strategy probe.StrategyName
	Settings []byte
}

type Coordinator struct {
	mu       *sync.Mutex
	registry Registry
	router   RouterFleet
	monitor  MonitorFleet
	probeCfg ProbeConfig
}

func NewCoordinator(registry Registry, router RouterFleet, monitor MonitorFleet, probeCfg ProbeConfig) *Coordinator {
	return &Coordinator{
		mu:       &sync.Mutex{},
		registry: registry,
		router:   router,
		monitor:  monitor,
		probeCfg: probeCfg,
	}
}

// Bootstrap registers the initial fleet before the node starts
// serving requests.
func (c *Coordinator) Bootstrap(replicas []models.Replica) error {
	for _, replica := range replicas {
		err := c.addReplica(replica)
		if err != nil {
			return fmt.Errorf("failed to bootstrap replica %s: %w", replica.ID, err)
		}
		log.Info().Msgf("bootstrapped replica %s", replica.ID)
	}
	return nil
}

// HandleFleetEvents applies registration changes in arrival order.
func (c *Coordinator) HandleFleetEvents(ctx context.Context, events []models.FleetEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, event := range events {
		switch event.Op {
		case models.FleetOpAdd:
			err := c.addReplica(event.Replica)
			if err != nil {
				return err
			}
		case models.FleetOpRemove:
			c.removeReplica(event.Replica.ID)
		default:
			log.Warn().Msgf("skipping unknown fleet event for replica %s", event.Replica.ID)
		}
	}
	return nil
}

func (c *Coordinator) addReplica(replica models.Replica) error {
	prober, err := c.proberFor(replica)
	if err != nil {
		return fmt.Errorf("failed to create prober for %s: %w", replica.ID, err)
	}
	c.registry.Register(replica)
	c.router.AddReplica(replica)
	c.monitor.Add(replica.ID, prober)
	return nil
}

func (c *Coordinator) removeReplica(id models.ReplicaID) {
	c.monitor.Remove(id)
	c.router.RemoveReplica(id)
	c.registry.Deregister(id)
}

func (c *Coordinator) proberFor(replica models.Replica) (probe.Prober, error) {
	name := c.probeCfg.Strategy
	settings := c.probeCfg.Settings
	if replica.Host == "" {
		name = probe.MockStrategy
		// re-seed per replica so simulated fleets do not fail in
		// lockstep while staying reproducible
		var cfg mockprobe.Settings
		if len(settings) > 0 {
			err := json.Unmarshal(settings, &cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to parse mock probe settings: %w", err)
			}
		}
		cfg.Seed += idSeed(replica.ID)
		reseeded, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		settings = reseeded
	}
	return probe.NewProber(name, probe.Target{Host: replica.Host, Port: replica.Port}, settings)
}

func idSeed(id models.ReplicaID) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}
