package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"time"
)

type routeRequest struct {
	Key string  `json:"key"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "routing node address")
	rate := flag.Duration("rate", 100*time.Millisecond, "delay between requests")
	keys := flag.Int("keys", 50, "distinct content keys")
	seed := flag.Uint64("seed", 1, "request generator seed")
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, *seed))
	client := &http.Client{Timeout: 5 * time.Second}

	var sent, failed int
	for {
		req := routeRequest{
			Key: fmt.Sprintf("asset-%d", rng.IntN(*keys)),
			Lat: -90 + rng.Float64()*180,
			Lon: -180 + rng.Float64()*360,
		}
		body, _ := json.Marshal(req)

		resp, err := client.Post(*addr+"/route", "application/json", bytes.NewReader(body))
		if err != nil {
			failed++
			log.Printf("request failed: %v", err)
			time.Sleep(*rate)
			continue
		}
		answer, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		sent++
		if resp.StatusCode != http.StatusOK {
			failed++
		}
		log.Printf("[%d/%d failed] %s -> %d %s", failed, sent, req.Key, resp.StatusCode, answer)
		time.Sleep(*rate)
	}
}
