package models

import "time"

// ProbeResult is one interpreted health probe outcome.
type ProbeResult struct {
	Replica ReplicaID
	At      time.Time
	Success bool
	Latency time.Duration
	Err     error
}
