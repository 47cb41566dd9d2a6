package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/api"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/breaker"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/fleet"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/health"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/metrics"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/notifyer"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/origin"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/registry"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/registry/postgres"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/router"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/sender"
	"github.com/Sh00ty/cloud-cdn/routing-node/pkg/probe"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

type Config struct {
	NodeID      string `envconfig:"CDN_NODE_ID"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL"`
	ListenAddr  string `envconfig:"LISTEN_ADDR,default=0.0.0.0:8080"`

	FleetFile string `envconfig:"FLEET_FILE,optional"`

	DatabaseHost     string `envconfig:"DATABASE_HOST,optional"`
	DatabaseUser     string `envconfig:"DATABASE_USER,optional"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,optional"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,optional"`

	QueueAddr  string `envconfig:"QUEUE_ADDR,optional"`
	QueueTopic string `envconfig:"QUEUE_FLEET_UPDATES_TOPIC,optional"`

	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`

	RoutingStrategy string        `envconfig:"ROUTING_STRATEGY,default=geo_proximity"`
	OriginTimeout   time.Duration `envconfig:"ORIGIN_TIMEOUT,default=2s"`

	OriginLatency     time.Duration `envconfig:"ORIGIN_LATENCY,default=50ms"`
	OriginFailureRate float64       `envconfig:"ORIGIN_FAILURE_RATE,default=0"`
	OriginSeed        uint64        `envconfig:"ORIGIN_SEED,default=1"`

	ProbeStrategy probe.StrategyName `envconfig:"PROBE_STRATEGY,default=mock"`
	ProbeSettings string             `envconfig:"PROBE_SETTINGS,optional"`

	HealthInterval     time.Duration `envconfig:"HEALTH_CHECK_INTERVAL,default=5s"`
	HealthProbeTimeout time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT,default=2s"`
	HealthWindowSize   int           `envconfig:"HEALTH_WINDOW_SIZE,default=5"`
	HealthDownDwell    time.Duration `envconfig:"HEALTH_DOWN_DWELL,default=10s"`

	BreakerWindowSize  int           `envconfig:"BREAKER_WINDOW_SIZE,default=10"`
	BreakerMinAttempts int           `envconfig:"BREAKER_MIN_ATTEMPTS,default=5"`
	BreakerFailureRate float64       `envconfig:"BREAKER_FAILURE_RATE,default=0.5"`
	BreakerCooldown    time.Duration `envconfig:"BREAKER_COOLDOWN,default=30s"`
	BreakerMaxCooldown time.Duration `envconfig:"BREAKER_MAX_COOLDOWN,default=5m"`

	ExecutorConcurrency  uint16        `envconfig:"EXECUTOR_CONCURRENCY,default=16"`
	ExecutorBuffer       uint32        `envconfig:"EXECUTOR_BUFFER,default=256"`
	ResendStatusInterval time.Duration `envconfig:"RESEND_STATUS_INTERVAL,default=30s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	log.Warn().Msgf("running routing node %s", appCfg.NodeID)

	var nodeMetrics metrics.Metrics = metrics.Nop{}
	if appCfg.StatsdAddr != "" {
		nodeMetrics = metrics.NewStatsd(appCfg.NodeID, appCfg.StatsdAddr)
	}

	healthSettings := health.DefaultSettings()
	healthSettings.Interval = appCfg.HealthInterval
	healthSettings.ProbeTimeout = appCfg.HealthProbeTimeout
	healthSettings.WindowSize = appCfg.HealthWindowSize
	healthSettings.DownDwell = appCfg.HealthDownDwell

	notify := notifyer.NewNotifier(1024)
	monitor := health.NewMonitor(
		healthSettings,
		notify,
		appCfg.ExecutorConcurrency,
		appCfg.ExecutorBuffer,
	)

	simOrigin := origin.NewSimulated(origin.SimSettings{
		Latency:     appCfg.OriginLatency,
		FailureRate: appCfg.OriginFailureRate,
		Seed:        appCfg.OriginSeed,
	})

	rt, err := router.New(router.Settings{
		Strategy: router.StrategyName(appCfg.RoutingStrategy),
		Breaker: breaker.Settings{
			WindowSize:  appCfg.BreakerWindowSize,
			MinAttempts: appCfg.BreakerMinAttempts,
			FailureRate: appCfg.BreakerFailureRate,
			Cooldown:    appCfg.BreakerCooldown,
			MaxCooldown: appCfg.BreakerMaxCooldown,
		},
		OriginTimeout: appCfg.OriginTimeout,
	}, monitor, simOrigin, nodeMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create router")
	}

	fleetRegistry := registry.NewInMemory()
	coordinator := fleet.NewCoordinator(fleetRegistry, rt, monitor, fleet.ProbeConfig{
		Strategy: appCfg.ProbeStrategy,
		Settings: []byte(appCfg.ProbeSettings),
	})

	initialFleet, fleetRepo, err := loadFleet(ctx, appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load replica fleet")
	}
	err = coordinator.Bootstrap(initialFleet)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap replica fleet")
	}

	if fleetRepo != nil {
		statusSender := sender.NewSenderController(
			notify.GetEventChan(),
			fleetRepo,
			appCfg.ResendStatusInterval,
		)
		go statusSender.Run(ctx)
	} else {
		go drainHealthEvents(ctx, notify.GetEventChan())
	}

	go func() {
		err := monitor.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("health monitor stopped")
		}
	}()

	if appCfg.QueueAddr != "" {
		watcher := fleet.NewUpdateWatcher(appCfg.NodeID, appCfg.QueueAddr, appCfg.QueueTopic, coordinator)
		go func() {
			err := watcher.Run(ctx)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				log.Fatal().Err(err).Msg("failed to consume fleet updates")
			}
		}()
		defer watcher.Close()
	}

	exporter := metrics.NewExporter(func() []metrics.ReplicaStats {
		statuses := rt.Snapshot()
		stats := make([]metrics.ReplicaStats, 0, len(statuses))
		for _, st := range statuses {
			stats = append(stats, metrics.ReplicaStats{
				ID:             st.ID.String(),
				Health:         string(st.Health),
				Circuit:        string(st.Circuit),
				Connections:    st.Connections,
				CacheUsed:      st.Cache.Used,
				CacheCapacity:  st.Cache.Capacity,
				CacheHits:      st.Cache.Hits,
				CacheMisses:    st.Cache.Misses,
				CacheEvictions: st.Cache.Evictions,
			})
		}
		return stats
	})

	srv := api.NewServer(appCfg.ListenAddr, rt, exporter.Handler())
	log.Info().Msgf("routing node listening on %s", appCfg.ListenAddr)
	err = srv.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}

// loadFleet prefers the postgres fleet repository and falls back to
// the static fleet file.
func loadFleet(ctx context.Context, cfg Config) ([]models.Replica, *postgres.Repository, error) {
	if cfg.DatabaseHost != "" {
		repo, err := postgres.NewRepo(
			ctx,
			cfg.DatabaseUser,
			cfg.DatabasePassword,
			cfg.DatabaseHost,
			cfg.DatabasePort,
		)
		if err != nil {
			return nil, nil, err
		}
		replicas, err := repo.GetFleet(ctx)
		if err != nil {
			return nil, nil, err
		}
		return replicas, repo, nil
	}
	if cfg.FleetFile != "" {
		replicas, err := registry.LoadFleetFile(cfg.FleetFile)
		return replicas, nil, err
	}
	return nil, nil, errors.New("neither DATABASE_HOST nor FLEET_FILE is set")
}

func drainHealthEvents(ctx context.Context, events chan models.HealthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			log.Info().
				Str("replica", event.Replica.String()).
				Msgf("health changed %s -> %s", event.From, event.To)
		}
	}
}
