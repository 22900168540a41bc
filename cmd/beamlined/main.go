// Beamline Core - experiment orchestration daemon
//
// This is the main entry point for Beamline Core. The daemon owns the
// automated grid-scan pipeline for a macromolecular crystallography
// endstation: safety-ordered motion, top-up gating, acquisition,
// analysis rendezvous and collection bookkeeping. Hardware is reached
// through the MQTT gateway; the GUI and queue tooling drive the daemon
// through its REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mxbeam/beamline-core/migrations"

	"github.com/mxbeam/beamline-core/internal/api"
	"github.com/mxbeam/beamline-core/internal/beamline"
	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/devices"
	"github.com/mxbeam/beamline-core/internal/docbus"
	"github.com/mxbeam/beamline-core/internal/gridscan"
	"github.com/mxbeam/beamline-core/internal/infrastructure/config"
	"github.com/mxbeam/beamline-core/internal/infrastructure/database"
	"github.com/mxbeam/beamline-core/internal/infrastructure/influxdb"
	"github.com/mxbeam/beamline-core/internal/infrastructure/logging"
	"github.com/mxbeam/beamline-core/internal/infrastructure/mqtt"
	"github.com/mxbeam/beamline-core/internal/rendezvous"
	"github.com/mxbeam/beamline-core/internal/sequencer"
	"github.com/mxbeam/beamline-core/internal/telemetry"
	"github.com/mxbeam/beamline-core/internal/topup"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Beamline Core",
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	qos := byte(cfg.MQTT.QoS)

	// Hardware layer: motion controller plus the gateway device clients.
	ctrl, err := beamline.NewBusController(mqttClient, "motion", qos, log.With("component", "controller"))
	if err != nil {
		return fmt.Errorf("creating motion controller: %w", err)
	}

	deviceLog := log.With("component", "devices")
	detector, err := devices.NewEigerDetector(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating detector client: %w", err)
	}
	trigger, err := devices.NewTriggerBox(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating trigger client: %w", err)
	}
	scanDriver, err := devices.NewScanDriver(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating scan driver: %w", err)
	}
	stages, err := devices.NewSampleStages(ctrl, mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating sample stages: %w", err)
	}
	machine, err := devices.NewMachineStatus(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating machine status client: %w", err)
	}
	cryo, err := devices.NewCryostream(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating cryostream client: %w", err)
	}
	aperture := devices.NewApertureScatterguard(ctrl, devices.DefaultAperturePositions(), 0)
	readings := devices.NewHardwareReadings(ctrl, machine)
	nexus, err := devices.NewNexusWriter(mqttClient, qos, deviceLog)
	if err != nil {
		return fmt.Errorf("creating nexus writer: %w", err)
	}

	// Safety sequencer and the robot-load default-state transition.
	seq := sequencer.New(ctrl, 0, log.With("component", "sequencer"))
	safety := devices.NewDefaultStateMover(seq, beamline.PositionSet{}, nil, cryo.Interlocks())

	// Top-up gate over the facility machine signals.
	gate := topup.NewGate(machine, topup.Config{
		AllowedModes: cfg.Gating.AllowedModes,
		OpsOverhead:  time.Duration(cfg.Gating.OpsOverheadSeconds * float64(time.Second)),
		PollInterval: time.Duration(cfg.Gating.PollIntervalMS) * time.Millisecond,
	}, log.With("component", "topup"))

	// Collection bookkeeping and the document stream.
	store := deposition.NewStore(deposition.NewSQLiteRepository(db.DB), log.With("component", "deposition"))
	docBus := docbus.NewBus(log.With("component", "docbus"))
	docBus.Subscribe("deposition", deposition.NewRecorder(store, log.With("component", "deposition")))
	if influxClient != nil {
		docBus.Subscribe("telemetry", telemetry.NewRecorder(influxClient))
	}

	// Analysis rendezvous.
	analysisClient, err := rendezvous.NewClient(mqttClient, qos, log.With("component", "rendezvous"))
	if err != nil {
		return fmt.Errorf("creating analysis client: %w", err)
	}
	centring := rendezvous.NewCoordinator(
		analysisClient,
		store,
		time.Duration(cfg.Rendezvous.TimeoutSeconds*float64(time.Second)),
		log.With("component", "rendezvous"),
	)

	// Grid-scan runner.
	runner := gridscan.NewRunner(
		gridscan.Config{
			OmegaToleranceDeg:      cfg.Scan.OmegaToleranceDeg,
			ApertureSmallThreshold: float64(cfg.Aperture.SmallThresholdVoxels),
			SetStubOffsets:         cfg.Scan.SetStubOffsets,
			DetectorID:             int64(cfg.Beamline.DetectorID),
		},
		gridscan.Deps{
			Safety:     safety,
			Detector:   detector,
			Trigger:    trigger,
			Acquirer:   scanDriver,
			Aperture:   aperture,
			Stages:     stages,
			Gate:       gate,
			Metadata:   nexus,
			Centring:   centring,
			Bookkeeper: store,
			Readings:   readings,
			Bus:        docBus,
			Logger:     log.With("component", "gridscan"),
		},
		log.With("component", "gridscan"),
	)

	// REST API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Runner:  runner,
		Store:   store,
		Version: version,
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

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Let an in-flight scan walk its tidy-up before the hardware
	// connections close underneath it.
	runner.Stop()
	runner.Wait()

	log.Info("Beamline Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BEAMLINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BEAMLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
