package models

import "time"

// HealthEvent is emitted by the health monitor whenever a replica
// transitions between health states.
type HealthEvent struct {
	Replica ReplicaID
	From    HealthState
	To      HealthState
	At      time.Time
	LastErr error
}

type FleetOp int

const (
	FleetOpUnknown FleetOp = iota
	FleetOpAdd
	FleetOpRemove
)

// FleetEvent is a replica registration change consumed from the
// fleet update stream.
type FleetEvent struct {
	Op        FleetOp
	Timestamp time.Time
	Replica   Replica
}
