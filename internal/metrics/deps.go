package metrics

import "time"

type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

// Nop discards all metrics. Used when no statsd address is set.
type Nop struct{}

func (Nop) Increment(string)               {}
func (Nop) Duration(string, time.Duration) {}
func (Nop) Gauge(string, int)              {}
