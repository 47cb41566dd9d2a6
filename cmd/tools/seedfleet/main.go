package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/registry/postgres"
)

// Seeds the replicas table with a synthetic fleet for local runs.
func main() {
	host := flag.String("host", "127.0.0.1", "database host")
	port := flag.Uint("port", 5432, "database port")
	count := flag.Int("count", 20, "replicas to create")
	seed := flag.Uint64("seed", 1, "fleet generator seed")
	flag.Parse()

	ctx := context.Background()
	r, err := postgres.NewRepo(ctx, "postgres", "postgres", *host, uint16(*port))
	if err != nil {
		panic(err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	for i := 0; i < *count; i++ {
		capacity := uint32(50 + rng.IntN(200))
		replica := models.Replica{
			ID: models.ReplicaID(fmt.Sprintf("edge-%03d", i)),
			Location: models.Coordinate{
				Lat: -90 + rng.Float64()*180,
				Lon: -180 + rng.Float64()*360,
			},
			Capacity:  capacity,
			Weight:    capacity,
			CacheSize: uint64(100+rng.IntN(900)) << 20,
			Host:      fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			Port:      8080,
		}
		err = r.CreateReplica(ctx, replica)
		if err != nil {
			fmt.Println(err)
		}
	}
}
