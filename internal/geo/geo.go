// Package geo approximates network distance between a client and a
// replica by great-circle distance between their coordinates.
package geo

import (
	"math"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

const earthRadiusKm = 6371

// Distance returns the haversine distance between two points in km.
func Distance(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}
