// CZone Gateway - NMEA2000 / CZone backend client
//
// This is the main entry point for the gateway. It connects to the CZone
// backend over the local bus, keeps the system model and alarm lists current
// and optionally exports telemetry, metrics and an alarm journal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/czone-gateway/internal/client"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/database"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/journal"
	"github.com/nerrad567/czone-gateway/internal/snapshot"
	"github.com/nerrad567/czone-gateway/migrations"
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
	log := logging.Default()

	// A .env file is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting CZone gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
		"gateway_id", cfg.Gateway.ID,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Telemetry (if enabled)
	var recorder snapshot.Recorder
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			log.Info("closing influxdb connection")
			if err := influxClient.Close(); err != nil {
				log.Error("error closing influxdb", "error", err)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("influxdb write error", "error", err)
		})
		recorder = influxClient
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("influxdb disabled")
	}

	// Alarm journal (if enabled)
	var alarmJournal *journal.Journal
	var db *database.DB
	if cfg.Journal.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		defer func() {
			log.Info("closing journal database")
			if err := db.Close(); err != nil {
				log.Error("error closing journal database", "error", err)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrating journal database: %w", err)
		}
		alarmJournal = journal.New(journal.NewSQLiteRepository(db.DB), log)
		log.Info("alarm journal opened", "path", cfg.Journal.Path)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	gw, err := client.New(client.Options{
		Config:   cfg,
		Recorder: recorder,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer func() {
		log.Info("closing bus link")
		if err := gw.Close(); err != nil {
			log.Error("error closing bus link", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := metrics.Serve(gctx, cfg.Metrics.Listen, reg); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if alarmJournal != nil {
		g.Go(func() error {
			alarmJournal.Watch(gctx, gw.ActiveAlarms(), journal.SourceBackend)
			return nil
		})
		g.Go(func() error {
			alarmJournal.Watch(gctx, gw.EngineAlarms(), journal.SourceEngine)
			return nil
		})
	}

	g.Go(func() error {
		log.Info("connecting to CZone backend",
			"service", cfg.Bus.Service,
			"broker", fmt.Sprintf("%s:%d", cfg.Bus.Broker.Host, cfg.Bus.Broker.Port),
		)
		if err := gw.Start(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("starting client: %w", err)
		}
		log.Info("initialisation complete, waiting for shutdown signal")
		return gw.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	log.Info("CZone gateway stopped")
	return nil
}

// healthCheck verifies the optional stores opened at startup are usable.
// Either may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal database: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// loadConfig reads the configuration file named by CZONEGW_CONFIG, or
// configs/config.yaml. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("CZONEGW_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating default config: %w", err)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
