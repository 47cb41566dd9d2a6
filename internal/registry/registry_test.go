package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

func TestInMemRegistry(t *testing.T) {
	reg := NewInMemory()

	a := models.Replica{ID: "edge-a", Capacity: 100, CacheSize: 1000}
	b := models.Replica{ID: "edge-b", Capacity: 50, CacheSize: 500}

	assert.True(t, reg.Register(b))
	assert.True(t, reg.Register(a))
	assert.False(t, reg.Register(a), "identical re-registration is a no-op")

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, models.ReplicaID("edge-a"), list[0].ID, "snapshot sorted by id")
	assert.Equal(t, models.ReplicaID("edge-b"), list[1].ID)

	got, ok := reg.Get("edge-a")
	require.True(t, ok)
	assert.Equal(t, a, got)

	assert.True(t, reg.Deregister("edge-a"))
	assert.False(t, reg.Deregister("edge-a"))
	_, ok = reg.Get("edge-a")
	assert.False(t, ok)
}

func TestLoadFleetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	content := `
replicas:
  - id: edge-nyc
    lat: 40.7128
    lon: -74.0060
    capacity: 200
    cache_size: 1000
  - id: edge-lax
    lat: 34.0522
    lon: -118.2437
    capacity: 100
    weight: 300
    cache_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	replicas, err := LoadFleetFile(path)
	require.NoError(t, err)
	require.Len(t, replicas, 2)

	assert.Equal(t, models.ReplicaID("edge-nyc"), replicas[0].ID)
	assert.Equal(t, uint32(200), replicas[0].Weight, "weight defaults to capacity")
	assert.Equal(t, uint32(300), replicas[1].Weight)
	assert.InDelta(t, 34.0522, replicas[1].Location.Lat, 1e-9)
}

func TestLoadFleetFileRejectsZeroCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicas:\n  - id: x\n    capacity: 1\n"), 0o644))

	_, err := LoadFleetFile(path)
	assert.Error(t, err)
}
