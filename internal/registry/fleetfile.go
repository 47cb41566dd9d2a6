package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type fleetFile struct {
	Replicas []replicaSpec `yaml:"replicas"`
}

type replicaSpec struct {
	ID        string  `yaml:"id"`
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`
	Capacity  uint32  `yaml:"capacity"`
	Weight    uint32  `yaml:"weight"`
	CacheSize uint64  `yaml:"cache_size"`
	Host      string  `yaml:"host"`
	Port      uint16  `yaml:"port"`
}

// LoadFleetFile reads the static replica fleet from a YAML file.
func LoadFleetFile(path string) ([]models.Replica, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file: %w", err)
	}
	var file fleetFile
	err = yaml.Unmarshal(raw, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fleet file: %w", err)
	}

	replicas := make([]models.Replica, 0, len(file.Replicas))
	for _, spec := range file.Replicas {
		if spec.ID == "" {
			return nil, fmt.Errorf("fleet file contains replica without id")
		}
		if spec.CacheSize == 0 {
			return nil, fmt.Errorf("replica %s has zero cache size", spec.ID)
		}
		weight := spec.Weight
		if weight == 0 {
			weight = spec.Capacity
		}
		replicas = append(replicas, models.Replica{
			ID:        models.ReplicaID(spec.ID),
			Location:  models.Coordinate{Lat: spec.Lat, Lon: spec.Lon},
			Capacity:  spec.Capacity,
			Weight:    weight,
			CacheSize: spec.CacheSize,
			Host:      spec.Host,
			Port:      spec.Port,
		})
	}
	return replicas, nil
}
