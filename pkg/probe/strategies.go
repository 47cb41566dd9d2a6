package probe

import (
	"encoding/json"
	"fmt"

	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe/httpprobe"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe/mockprobe"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe/tcpprobe"
)

// NewProber builds a prober for target from a strategy name and its
// JSON-encoded settings blob.
func NewProber(name StrategyName, target Target, cfg []byte) (Prober, error) {
	var (
		settingsVar any
		createFunc  func(any) (Prober, error)
	)
	switch name {
	case HTTPStrategy:
		settingsVar = &httpprobe.Settings{}
		createFunc = func(settings any) (Prober, error) {
			return httpprobe.New(settings.(*httpprobe.Settings), target.String())
		}
	case TCPStrategy:
		settingsVar = &tcpprobe.Settings{}
		createFunc = func(settings any) (Prober, error) {
			return tcpprobe.New(settings.(*tcpprobe.Settings), target.String()), nil
		}
	case MockStrategy:
		settingsVar = &mockprobe.Settings{}
		createFunc = func(settings any) (Prober, error) {
			return mockprobe.New(settings.(*mockprobe.Settings)), nil
		}
	default:
		return nil, fmt.Errorf("unknown probe strategy: %s", name)
	}

	if len(cfg) > 0 {
		err := json.Unmarshal(cfg, settingsVar)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal cfg for probe strategy %s: %w", name, err)
		}
	}
	return createFunc(settingsVar)
}
