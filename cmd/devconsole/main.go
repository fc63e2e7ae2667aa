// Device Console - account and device management service
//
// This is the main entry point for the device console. It serves the
// login, registration and device pages over HTTP, keeps every account and
// device in a local SQLite file, and optionally mirrors device changes to
// an MQTT broker and auth/device counters to InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/device-console/internal/api"
	"github.com/nerrad567/device-console/internal/audit"
	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/console"
	"github.com/nerrad567/device-console/internal/device"
	"github.com/nerrad567/device-console/internal/infrastructure/config"
	"github.com/nerrad567/device-console/internal/infrastructure/database"
	"github.com/nerrad567/device-console/internal/infrastructure/influxdb"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
	"github.com/nerrad567/device-console/internal/infrastructure/mqtt"
	"github.com/nerrad567/device-console/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the application together and blocks until ctx is cancelled.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,funlen // Linear start-up sequence
	log := logging.Default()
	log.Info("starting device console",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	users := auth.NewUserRepository(db.DB)
	guard, err := auth.NewGuard(users, auth.NewSessionRepository(db.DB), auth.GuardConfig{
		Secret: cfg.Session.Secret,
		TTL:    cfg.GetSessionTTL(),
	}, log)
	if err != nil {
		return fmt.Errorf("creating session guard: %w", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)

	checks := map[string]api.HealthChecker{"database": db}
	var publishers []console.EventPublisher
	var hub *api.Hub
	if cfg.WebSocket.Enabled {
		hub, err = api.NewHub(cfg.WebSocket, guard, log)
		if err != nil {
			return fmt.Errorf("creating websocket hub: %w", err)
		}
		publishers = append(publishers, hub)
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, log)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		publishers = append(publishers, mqttClient)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	var metrics console.Metrics
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, log)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metrics = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	svc, err := console.New(console.Deps{
		Users:      users,
		Devices:    device.NewSQLiteRepository(db.DB),
		Guard:      guard,
		Audit:      recorder,
		AuditLogs:  auditRepo,
		Publishers: publishers,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating console service: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Session: cfg.Session,
		WS:      cfg.WebSocket,
		Logger:  log,
		Console: svc,
		Guard:   guard,
		Hub:     hub,
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// The recorder outlives the HTTP server so entries from requests that
	// finish during shutdown are still written.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recorder.Run(auditCtx) })
	g.Go(func() error { return guard.RunPurger(gctx, cfg.GetPurgeInterval()) })
	if hub != nil {
		g.Go(func() error { return hub.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		err := server.Close()
		stopAudit()
		return err
	})

	log.Info("initialisation complete",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"websocket", cfg.WebSocket.Enabled,
		"mqtt", cfg.MQTT.Enabled,
		"influxdb", cfg.InfluxDB.Enabled,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("device console stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVCONSOLE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVCONSOLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every configured dependency before serving.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
