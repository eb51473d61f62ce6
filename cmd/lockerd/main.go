// Lockerweb Core - Smart Locker Coordination Service
//
// lockerd is the coordination core between a fleet of smart locker
// controllers and the web platform. It tracks which lockers are
// reachable, routes cell commands to them over websocket or HTTP
// polling, correlates their replies, and streams status changes to
// admin dashboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Drrein86/lockerweb-core/migrations"

	"github.com/Drrein86/lockerweb-core/internal/api"
	"github.com/Drrein86/lockerweb-core/internal/dispatch"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/config"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/database"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/influxdb"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/logging"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/mqtt"
	"github.com/Drrein86/lockerweb-core/internal/locker"
	"github.com/Drrein86/lockerweb-core/internal/monitor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lockerweb Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database (display/audit mirror, not the source of truth)
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Persistence mirror: registry changes flow to SQLite asynchronously,
	// so a slow disk never blocks device message handling.
	store := locker.NewStore(db)
	mirror := locker.NewAsyncMirror(store, cfg.Locker.MirrorQueueSize, log)
	mirror.Start()
	defer func() {
		log.Info("draining persistence mirror")
		mirror.Close()
	}()

	// In-memory fleet registry, the authoritative state
	registry := locker.NewRegistry(cfg.Locker.GetLivenessWindow())
	registry.SetLogger(log)
	registry.SetMirror(mirror)

	// Command correlation and dispatch
	correlator := dispatch.NewCorrelator(log)
	dispatcher := dispatch.NewDispatcher(registry, correlator, cfg.Locker.GetCommandTimeout(), log)

	// Admin status stream hub
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Event sink: always the hub, plus the MQTT mirror when enabled
	sink := locker.MultiSink{hub}

	// Connect to MQTT broker (optional event mirror)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		sink = append(sink, mqtt.NewEventMirror(mqttClient))
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional command/fleet telemetry)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		dispatcher.SetTelemetry(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	dispatcher.SetEventSink(sink)

	// Liveness monitor: offline sweeps and stale pending-command reaping
	mon := monitor.New(monitor.Config{
		Registry:      registry,
		Correlator:    correlator,
		Sink:          sink,
		SweepInterval: cfg.Locker.GetSweepInterval(),
		PendingMaxAge: cfg.Locker.GetPendingMaxAge(),
		Logger:        log,
	})
	go mon.Run(ctx)

	// API server: web platform endpoints plus both device transports
	serverDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Locker:      cfg.Locker,
		Logger:      log,
		Registry:    registry,
		Correlator:  correlator,
		Dispatcher:  dispatcher,
		Sink:        sink,
		ExternalHub: hub,
		Version:     version,
	}
	if influxClient != nil {
		serverDeps.Fleet = influxClient
	}

	server, err := api.New(serverDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains in-flight requests)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Persistence mirror
	// 5. Database

	log.Info("Lockerweb Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LOCKERWEB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LOCKERWEB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
