package models

import "fmt"

type ReplicaID string

func (r ReplicaID) String() string {
	return string(r)
}

// Coordinate is a geographic point used for proximity routing.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Replica is the static metadata of one content-caching node,
// as published by the fleet registry. Runtime state (health,
// circuit, connections, cache) lives in the owning components.
type Replica struct {
	ID       ReplicaID
	Location Coordinate
	// Capacity is the declared max concurrent connections.
	Capacity uint32
	// Weight drives weighted round-robin selection; derived
	// from capacity when the fleet source does not set it.
	Weight uint32
	// CacheSize is the replica cache capacity in content-size units.
	CacheSize uint64
	// Host and Port are set when the replica is probed over the
	// network; the mock probe strategy is used when absent.
	Host string
	Port uint16
}

func (r Replica) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)
