package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReplicaStats is the per-replica view exported on scrape.
type ReplicaStats struct {
	ID             string
	Health         string
	Circuit        string
	Connections    int64
	CacheUsed      uint64
	CacheCapacity  uint64
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
}

// Exporter exposes the fleet state as Prometheus metrics. It pulls a
// fresh snapshot from the router on every scrape instead of keeping
// its own counters.
type Exporter struct {
	source   func() []ReplicaStats
	registry *prometheus.Registry

	healthDesc    *prometheus.Desc
	circuitDesc   *prometheus.Desc
	connsDesc     *prometheus.Desc
	cacheUsedDesc *prometheus.Desc
	cacheCapDesc  *prometheus.Desc
	hitsDesc      *prometheus.Desc
	missesDesc    *prometheus.Desc
	evictionsDesc *prometheus.Desc
}

func NewExporter(source func() []ReplicaStats) *Exporter {
	e := &Exporter{
		source:   source,
		registry: prometheus.NewRegistry(),
		healthDesc: prometheus.NewDesc(
			"cdn_replica_health",
			"Replica health: 1 healthy, 0.5 degraded, 0 down",
			[]string{"replica"}, nil,
		),
		circuitDesc: prometheus.NewDesc(
			"cdn_replica_breaker_state",
			"Circuit breaker state: 0 closed, 1 half-open, 2 open",
			[]string{"replica"}, nil,
		),
		connsDesc: prometheus.NewDesc(
			"cdn_replica_connections",
			"Current in-flight connections routed to the replica",
			[]string{"replica"}, nil,
		),
		cacheUsedDesc: prometheus.NewDesc(
			"cdn_replica_cache_used",
			"Occupied cache size in content-size units",
			[]string{"replica"}, nil,
		),
		cacheCapDesc: prometheus.NewDesc(
			"cdn_replica_cache_capacity",
			"Cache capacity in content-size units",
			[]string{"replica"}, nil,
		),
		hitsDesc: prometheus.NewDesc(
			"cdn_replica_cache_hits_total",
			"Cache lookups that hit",
			[]string{"replica"}, nil,
		),
		missesDesc: prometheus.NewDesc(
			"cdn_replica_cache_misses_total",
			"Cache lookups that missed",
			[]string{"replica"}, nil,
		),
		evictionsDesc: prometheus.NewDesc(
			"cdn_replica_cache_evictions_total",
			"Entries evicted to make room",
			[]string{"replica"}, nil,
		),
	}
	e.registry.MustRegister(e)
	return e
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.healthDesc
	ch <- e.circuitDesc
	ch <- e.connsDesc
	ch <- e.cacheUsedDesc
	ch <- e.cacheCapDesc
	ch <- e.hitsDesc
	ch <- e.missesDesc
	ch <- e.evictionsDesc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, replica := range e.source() {
		ch <- prometheus.MustNewConstMetric(
			e.healthDesc, prometheus.GaugeValue, healthValue(replica.Health), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.circuitDesc, prometheus.GaugeValue, circuitValue(replica.Circuit), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.connsDesc, prometheus.GaugeValue, float64(replica.Connections), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.cacheUsedDesc, prometheus.GaugeValue, float64(replica.CacheUsed), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.cacheCapDesc, prometheus.GaugeValue, float64(replica.CacheCapacity), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.hitsDesc, prometheus.CounterValue, float64(replica.CacheHits), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.missesDesc, prometheus.CounterValue, float64(replica.CacheMisses), replica.ID)
		ch <- prometheus.MustNewConstMetric(
			e.evictionsDesc, prometheus.CounterValue, float64(replica.CacheEvictions), replica.ID)
	}
}

func healthValue(state string) float64 {
	switch state {
	case "healthy":
		return 1
	case "degraded":
		return 0.5
	}
	return 0
}

func circuitValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	}
	return 2
}
