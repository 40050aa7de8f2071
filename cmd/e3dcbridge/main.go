// E3DC MQTT Bridge
//
// This is the main entry point for the bridge process. It connects to
// an E3DC home power station over RSCP, polls live status and daily
// statistics on independent cadences, and republishes every changed
// reading as retained MQTT messages:
//   - Change-tracked publishing (only fields that moved are sent)
//   - Wall-clock aligned polling without cumulative drift
//   - Optional SQLite snapshot archive and InfluxDB mirror
//   - Optional HTTP endpoint for health probes and Prometheus scrapes
//
// The process is deliberately not self-healing: a lost device or broker
// session ends the run, and the supervisor (systemd, Docker) restarts
// it into a clean session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/api"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/bridge"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/e3dc"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/history"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/rscp"
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
	configFlag := flag.String("config", "", "path to the configuration file")
	versionFlag := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("e3dc-mqtt-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, resolveConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting E3DC MQTT bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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
	log.Debug("active configuration", "config", cfg.String())

	// Connect to the device and run discovery
	device, err := connectDevice(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connecting to device: %w", err)
	}
	defer func() {
		log.Info("closing device session")
		if closeErr := device.Close(); closeErr != nil {
			log.Error("error closing device session", "error", closeErr)
		}
	}()
	log.Info("device connected",
		"device_id", device.DeviceID(),
		"model", device.Model(),
		"batteries", len(device.Batteries()),
	)

	// Connect to MQTT broker; the LWT is registered during connect so
	// an ungraceful exit flips the availability topic to offline.
	mqttClient, err := mqtt.Connect(cfg.MQTT, device.DeviceID())
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
	log.Info("MQTT connected",
		"broker", cfg.MQTT.Broker,
		"root_topic", cfg.MQTT.RootTopic,
	)

	// Open the snapshot archive (optional)
	var db *database.DB
	var archive *history.Archive
	if cfg.Database.Enabled {
		db, archive, err = openArchive(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening snapshot archive: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("snapshot archive opened",
			"path", cfg.Database.Path,
			"retention", cfg.Database.Retention.Std(),
		)
	} else {
		log.Info("snapshot archive disabled")
	}

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

	// Verify all connections are healthy before entering the loop
	if err := healthCheck(ctx, device, mqttClient, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Assemble the bridge
	opts := bridge.Options{
		Device:             device,
		MQTT:               mqttClient,
		StatusInterval:     cfg.E3DC.PollInterval.Std(),
		StatisticsInterval: cfg.E3DC.StatisticsInterval.Std(),
		Logger:             log,
	}
	// Optional sinks are assigned conditionally so a disabled sink
	// stays a nil interface inside the bridge.
	if archive != nil {
		opts.Archive = archive
		opts.ArchiveRetention = cfg.Database.Retention.Std()
	}
	if influxClient != nil {
		opts.Mirror = influxClient
	}

	br, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// A dropped broker session aborts the run; the supervisor restart
	// is the reconnect path.
	mqttClient.SetOnConnectionLost(br.ConnectionLost)

	// Start the ops HTTP endpoint (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg, log, br, device.DeviceID())
		if apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, entering poll loop",
		"poll_interval", cfg.E3DC.PollInterval.Std(),
		"statistics_interval", cfg.E3DC.StatisticsInterval.Std(),
	)

	// Run owns the polling loop until the context is cancelled or a
	// connection fails. Deferred Close() calls then run in reverse
	// order: API, InfluxDB, database, MQTT (publishes offline), device.
	if err := br.Run(ctx); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	log.Info("E3DC MQTT bridge stopped")
	return nil
}

// resolveConfigPath returns the configuration file path.
// Precedence: -config flag, E3DC_BRIDGE_CONFIG environment variable,
// built-in default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("E3DC_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectDevice establishes the authenticated RSCP session and runs
// the one-time startup discovery.
//
// Parameters:
//   - ctx: Context for connection/cancellation
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *e3dc.Client: Device client with discovered battery topology
//   - error: If the session or discovery fails
func connectDevice(ctx context.Context, cfg *config.Config, log *logging.Logger) (*e3dc.Client, error) {
	transport, err := rscp.Connect(ctx, rscp.Config{
		Host:           cfg.E3DC.Address(),
		Username:       cfg.E3DC.Username,
		Password:       cfg.E3DC.Password,
		Key:            cfg.E3DC.Key,
		ConnectTimeout: cfg.E3DC.ConnectTimeout.Std(),
		ReadTimeout:    cfg.E3DC.ReadTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("establishing RSCP session: %w", err)
	}
	transport.SetLogger(log)

	device, err := e3dc.New(ctx, transport)
	if err != nil {
		// Clean up the session on discovery failure
		_ = transport.Close()
		return nil, fmt.Errorf("device discovery: %w", err)
	}
	device.SetLogger(log)

	return device, nil
}

// openArchive opens the SQLite database and prepares the snapshot
// archive schema.
func openArchive(ctx context.Context, cfg *config.Config) (*database.DB, *history.Archive, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	archive, err := history.New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("preparing archive schema: %w", err)
	}

	return db, archive, nil
}

// startAPI initialises and starts the health and metrics HTTP server.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, br *bridge.Bridge, deviceID string) (*api.Server, error) {
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Bridge:   br,
		DeviceID: deviceID,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	if err := apiServer.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	log.Info("API server started", "listen", cfg.API.Listen)

	return apiServer, nil
}

// healthCheck verifies all connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - device: Device client to check
//   - mqttClient: MQTT client to check
//   - db: Database to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, device *e3dc.Client, mqttClient *mqtt.Client, db *database.DB, influxClient *influxdb.Client) error {
	// Check device session
	if !device.IsConnected() {
		return fmt.Errorf("device: session not connected")
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check database (if enabled)
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
