// zigbee-core - Zigbee mesh integration service
//
// This is the main entry point for zigbee-core. The service bridges one
// or more zigbee2mqtt coordinators into the platform device directory:
//   - Inbound state reports become typed device states
//   - Outbound commands become zigbee2mqtt set messages
//   - Numeric telemetry is forwarded to InfluxDB
//   - A read-only REST API exposes the directory and mesh topology
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/graymesh/zigbee-core/migrations"

	"github.com/graymesh/zigbee-core/internal/api"
	"github.com/graymesh/zigbee-core/internal/bridges/zigbee"
	"github.com/graymesh/zigbee-core/internal/device"
	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
	"github.com/graymesh/zigbee-core/internal/infrastructure/database"
	"github.com/graymesh/zigbee-core/internal/infrastructure/influxdb"
	"github.com/graymesh/zigbee-core/internal/infrastructure/logging"
	"github.com/graymesh/zigbee-core/internal/infrastructure/mqtt"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting zigbee-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device directory
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry, err := device.NewRegistry(ctx, deviceRepo, log.Component("registry"))
	if err != nil {
		return fmt.Errorf("loading device directory: %w", err)
	}
	log.Info("device directory initialised", "stats", registry.Stats())

	// Connect to InfluxDB (optional)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start one bridge per configured coordinator. Each coordinator gets
	// its own broker connection and its own ordered worker loop.
	coordinators := make([]api.Coordinator, 0, len(cfg.Coordinators))
	for _, coord := range cfg.Coordinators {
		bridge, mqttClient, bridgeErr := startBridge(ctx, coord, registry, influxClient, log)
		if bridgeErr != nil {
			return fmt.Errorf("coordinator %q: %w", coord.Name, bridgeErr)
		}
		defer func(name string) {
			log.Info("stopping bridge", "coordinator", name)
			bridge.Stop()
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "coordinator", name, "error", closeErr)
			}
		}(coord.Name)

		coordinators = append(coordinators, api.Coordinator{
			Config: coord,
			Mesh:   bridge,
		})
	}

	// Start REST API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			Logger:       log.Component("api"),
			Registry:     registry,
			Coordinators: coordinators,
			DB:           db,
			Influx:       influxClient,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal. Deferred Close() calls run in reverse
	// order: API, bridges with their MQTT connections, InfluxDB, database.
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("zigbee-core stopped")
	return nil
}

// startBridge connects one coordinator's MQTT broker and starts its bridge.
func startBridge(
	ctx context.Context,
	coord config.CoordinatorConfig,
	registry *device.Registry,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*zigbee.Bridge, *mqtt.Client, error) {
	mqttClient, err := mqtt.Connect(coord)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt").With("coordinator", coord.Name))
	log.Info("MQTT connected",
		"coordinator", coord.Name,
		"broker", fmt.Sprintf("%s:%d", coord.Broker.Host, coord.Broker.Port),
		"client_id", coord.Broker.ClientID,
	)

	opts := zigbee.BridgeOptions{
		Config:    coord,
		Client:    mqttClient,
		Directory: registry,
		Logger:    log.Component("zigbee").With("coordinator", coord.Name),
	}
	// Leave Telemetry nil when InfluxDB is disabled so the mapper skips
	// metric writes entirely.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	bridge, err := zigbee.NewBridge(opts)
	if err != nil {
		_ = mqttClient.Close()
		return nil, nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		_ = mqttClient.Close()
		return nil, nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started", "coordinator", coord.Name, "root_topic", coord.RootTopic)
	return bridge, mqttClient, nil
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ZIGBEECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ZIGBEECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
