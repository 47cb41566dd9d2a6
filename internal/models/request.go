package models

import (
	"time"

	"github.com/google/uuid"
)

// Request is one incoming content request. It lives for a single
// routing call and is never persisted.
type Request struct {
	ID        uuid.UUID
	Key       string
	Client    Coordinate
	ArrivedAt time.Time
}

func NewRequest(key string, client Coordinate) Request {
	return Request{
		ID:        uuid.New(),
		Key:       key,
		Client:    client,
		ArrivedAt: time.Now(),
	}
}

type Outcome string

const (
	OutcomeHit Outcome = "hit"
	// OutcomeMissFilled means the key missed, the origin fetch
	// succeeded and the content was inserted into the replica cache.
	OutcomeMissFilled Outcome = "miss-filled"
	// OutcomeOriginServed means the origin fetch succeeded but the
	// content is larger than the replica cache and was not stored.
	OutcomeOriginServed Outcome = "origin-served"
	OutcomeFailure      Outcome = "failure"
)

type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonNoEligibleReplica FailureReason = "no-eligible-replica"
	ReasonOriginUnavailable FailureReason = "origin-unavailable"
)

// RoutingDecision is the result of routing one request.
type RoutingDecision struct {
	RequestID uuid.UUID
	Replica   ReplicaID
	Strategy  string
	Outcome   Outcome
	Reason    FailureReason
	Latency   time.Duration
}
