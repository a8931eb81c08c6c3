// Arena Core - real-time bridge for the arena game platform.
//
// Arena Core sits between shooting-target devices on the MQTT bus and
// player clients on WebSocket connections: it tracks device presence,
// routes team session traffic, runs competitive matches and exposes a
// small REST control surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/arenalink/arena-core/migrations"

	"github.com/arenalink/arena-core/internal/api"
	"github.com/arenalink/arena-core/internal/command"
	"github.com/arenalink/arena-core/internal/device"
	"github.com/arenalink/arena-core/internal/hub"
	"github.com/arenalink/arena-core/internal/infrastructure/config"
	"github.com/arenalink/arena-core/internal/infrastructure/database"
	"github.com/arenalink/arena-core/internal/infrastructure/influxdb"
	"github.com/arenalink/arena-core/internal/infrastructure/logging"
	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
	"github.com/arenalink/arena-core/internal/ingest"
	"github.com/arenalink/arena-core/internal/match"
	"github.com/arenalink/arena-core/internal/session"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Arena Core",
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

	// Open database and run migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device registry over the persistence layer
	repo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(repo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional hit telemetry)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connection hub and session router
	wsHub := hub.New(cfg.WebSocket.SendBufferSize)
	wsHub.SetLogger(log)
	defer wsHub.CloseAll()

	matches := match.NewManager(wsHub)
	matches.SetLogger(log)

	router := session.NewRouter(wsHub, matches)
	router.SetLogger(log)

	// Heartbeat reaper: silent devices go offline and the transition is
	// pushed to device feed subscribers.
	reaper := device.NewReaper(registry, cfg.Game.GetHeartbeatInterval(), cfg.Game.GetOfflineThreshold())
	reaper.SetLogger(log)
	reaper.SetLogStore(repo)
	reaper.SetNotifier(func(d device.Device) {
		wsHub.Broadcast(session.DeviceRoom(d.ID), map[string]any{
			"type":      "device_message",
			"device_id": d.ID,
			"action":    "offline",
		})
		if influxClient != nil {
			influxClient.WriteDevicePresence(d.ID, false, "heartbeat_timeout")
		}
	})
	reaper.Start(ctx)
	defer reaper.Stop()
	log.Info("heartbeat reaper started",
		"interval", cfg.Game.GetHeartbeatInterval(),
		"threshold", cfg.Game.GetOfflineThreshold(),
	)

	// Device message ingestion
	ingestor := ingest.New(registry, repo, repo, matches, wsHub)
	ingestor.SetLogger(log)
	if influxClient != nil {
		ingestor.SetTelemetry(influxClient)
	}
	if err := ingestor.Start(mqttClient, byte(cfg.MQTT.QoS)); err != nil {
		return fmt.Errorf("starting device ingestion: %w", err)
	}

	// Command publisher for the REST control surface
	commands := command.NewPublisher(mqttClient)
	commands.SetLogger(log)

	// HTTP API and WebSocket endpoint
	server, err := api.New(api.Deps{
		Config:           cfg.API,
		WS:               cfg.WebSocket,
		Security:         cfg.Security,
		Logger:           log,
		Registry:         registry,
		Logs:             repo,
		Commands:         commands,
		Matches:          matches,
		Hub:              wsHub,
		Session:          router,
		MQTT:             mqttClient,
		Version:          version,
		DefaultCountdown: cfg.Game.CountdownSeconds,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ARENA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ARENA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
