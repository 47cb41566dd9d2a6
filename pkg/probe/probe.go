package probe

import (
	"context"
	"fmt"
)

type StrategyName string

const (
	MockStrategy StrategyName = "mock"
	HTTPStrategy StrategyName = "http"
	TCPStrategy  StrategyName = "tcp"
)

// Prober performs one synthetic health check against a replica.
// A nil error means the replica answered. Probers must honor ctx
// cancellation; the monitor bounds every probe with a timeout.
type Prober interface {
	Probe(ctx context.Context) error
}

type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}
