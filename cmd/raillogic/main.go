// Rail Logic Core - model railway interlocking and automatic train control.
//
// This is the main entry point. The core loads the layout from SQLite,
// talks to the command station gateways over MQTT and serves the operator
// console over HTTP and WebSocket.
//
// Usage:
//
//	raillogic                  run the core (config from RAILLOGIC_CONFIG)
//	raillogic hash-password    read a password on stdin, print its argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/api"
	"github.com/nerrad567/rail-logic-core/internal/auth"
	"github.com/nerrad567/rail-logic-core/internal/control"
	"github.com/nerrad567/rail-logic-core/internal/dispatcher"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/database"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/layout"
	"github.com/nerrad567/rail-logic-core/migrations"
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
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancelled on Ctrl+C or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Rail Logic Core",
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

	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	dispatcherCfg, err := dispatcherConfig(cfg.Interlocking)
	if err != nil {
		return err
	}
	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return fmt.Errorf("loading operators: %w", err)
	}
	for _, o := range cfg.Security.Operators {
		if o.PasswordHash != "" && auth.NeedsRehash(o.PasswordHash) {
			log.Warn("operator password hash uses outdated parameters, regenerate with hash-password",
				"operator", o.Username)
		}
	}

	// Database
	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Layout
	repo := layout.NewSQLiteRepository(db.DB)
	l, err := loadLayout(ctx, repo, cfg.Layout.SeedFile, log)
	if err != nil {
		return err
	}

	// MQTT
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
	mqttClient.SetLogger(log.Component("mqtt"))
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

	// InfluxDB (optional)
	components := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	var telemetry dispatcher.Telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
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
		telemetry = influxClient
		components["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Control bridge
	bridge, err := control.New(control.Options{
		MQTT:           mqttClient,
		Stations:       append(l.Stations(), cfg.Control.Stations...),
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		StaleAfter:     time.Duration(cfg.Control.StaleAfter) * time.Second,
		HealthInterval: time.Duration(cfg.Control.HealthInterval) * time.Second,
		Version:        version,
		Logger:         log.Component("control"),
	})
	if err != nil {
		return fmt.Errorf("creating control bridge: %w", err)
	}

	// Dispatcher
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	manager := dispatcher.New(dispatcherCfg, dispatcher.Deps{
		Control:   bridge,
		Hub:       hub,
		Telemetry: telemetry,
		Store:     repo,
		Logger:    log.Component("dispatcher"),
	})
	if err := manager.Build(l); err != nil {
		return fmt.Errorf("building layout: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher, all locos to manual mode")
		if stopErr := manager.Stop(); stopErr != nil {
			log.Error("error stopping dispatcher", "error", stopErr)
		}
	}()

	if err := bridge.Start(ctx, manager); err != nil {
		return fmt.Errorf("starting control bridge: %w", err)
	}
	defer func() {
		log.Info("stopping control bridge")
		bridge.Stop()
	}()

	// API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Auth:       authenticator,
		Dispatcher: manager,
		Logger:     log.Component("api"),
		Hub:        hub,
		Components: components,
		Version:    version,
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

	if err := healthCheck(ctx, components); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"tracks", len(l.Tracks),
		"routes", len(l.Routes),
		"locos", len(l.Locos),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Control bridge
	// 3. Dispatcher (locos to manual, persist queue flushed)
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Rail Logic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RAILLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RAILLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadLayout imports the seed file into an empty database and loads the
// stored layout.
func loadLayout(ctx context.Context, repo *layout.SQLiteRepository, seedFile string, log *logging.Logger) (*layout.Layout, error) {
	empty, err := repo.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking layout: %w", err)
	}
	if empty {
		if seedFile == "" {
			return nil, errors.New("database holds no layout and layout.seed_file is not set")
		}
		seed, err := layout.LoadSeedFile(seedFile)
		if err != nil {
			return nil, fmt.Errorf("loading seed: %w", err)
		}
		if err := repo.Import(ctx, seed); err != nil {
			return nil, fmt.Errorf("importing seed: %w", err)
		}
		log.Info("layout imported from seed", "path", seedFile)
	}

	l, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading layout: %w", err)
	}
	if err := layout.Validate(l); err != nil {
		return nil, fmt.Errorf("stored layout: %w", err)
	}
	log.Info("layout loaded",
		"tracks", len(l.Tracks),
		"routes", len(l.Routes),
		"feedbacks", len(l.Feedbacks),
		"locos", len(l.Locos),
	)
	return l, nil
}

// dispatcherConfig converts the interlocking section to dispatcher settings.
func dispatcherConfig(c config.InterlockingConfig) (dispatcher.Config, error) {
	approach, err := interlock.ParseSelectRouteApproach(c.SelectRouteApproach)
	if err != nil {
		return dispatcher.Config{}, fmt.Errorf("interlocking: %w", err)
	}
	return dispatcher.Config{
		TickInterval:              time.Duration(c.TickIntervalMS) * time.Millisecond,
		DebounceInterval:          time.Duration(c.DebounceIntervalMS) * time.Millisecond,
		HealthInterval:            time.Duration(c.HealthInterval) * time.Second,
		ManualModeTimeout:         time.Duration(c.ManualModeTimeout) * time.Second,
		NrOfTracksToReserve:       c.NrOfTracksToReserve,
		SelectRouteApproach:       approach,
		StopOnFeedbackInFreeTrack: c.StopOnFeedbackInFreeTrack,
	}, nil
}

// newAuthenticator builds the operator list from the security section.
func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	operators := make([]auth.Operator, 0, len(cfg.Security.Operators))
	for _, o := range cfg.Security.Operators {
		operators = append(operators, auth.Operator{
			Username:     o.Username,
			PasswordHash: o.PasswordHash,
			Role:         auth.Role(o.Role),
		})
	}
	return auth.NewAuthenticator(operators, cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL())
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, components map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		c, ok := components[name]
		if !ok {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// hashPassword reads one line from r and writes its argon2id hash to w,
// ready for security.operators[].password_hash.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
