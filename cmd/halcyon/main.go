// Halcyon Core - Supervised Home Automation
//
// This is the main entry point for the Halcyon Core application. It runs
// the full command-approval pipeline in a single process: the controller
// forwarder, the approval coordinator, the supervisor decision engine, and
// the read-only status API, all connected over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/halcyon-home/halcyon-core/internal/api"
	"github.com/halcyon-home/halcyon-core/internal/approval"
	"github.com/halcyon-home/halcyon-core/internal/audit"
	"github.com/halcyon-home/halcyon-core/internal/controller"
	"github.com/halcyon-home/halcyon-core/internal/coordinator"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/config"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/database"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/influxdb"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/logging"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/mqtt"
	"github.com/halcyon-home/halcyon-core/internal/supervisor"
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

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Halcyon Core",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the decision log database
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
	log.Info("database schema applied")

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to the MQTT broker
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

	mqttClient.SetLogger(log)
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

	bus := newMQTTAgentAdapter(mqttClient)
	policy := approval.SafetyPolicy(cfg.Approval.SafetyPolicy)
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2 in config

	// Supervisor decision engine
	supervisorOpts := supervisor.Options{
		MQTT:           bus,
		Logger:         log.With("component", "supervisor"),
		DecisionBudget: cfg.GetDecisionBudget(),
		NightStartHour: cfg.Approval.NightStartHour,
		NightEndHour:   cfg.Approval.NightEndHour,
		FloodThreshold: cfg.Approval.FloodThreshold,
		SensitiveRooms: cfg.Approval.SensitiveRooms,
		Policy:         policy,
		QoS:            qos,
	}
	if cfg.Reasoner.Enabled {
		supervisorOpts.Reasoner = supervisor.NewOllamaClient(cfg.Reasoner.URL, cfg.Reasoner.Model)
		log.Info("reasoner enabled", "url", cfg.Reasoner.URL, "model", cfg.Reasoner.Model)
	} else {
		log.Info("reasoner disabled, rules and heuristic only")
	}
	if influxClient != nil {
		supervisorOpts.Telemetry = influxClient
	}

	engine, err := supervisor.New(supervisorOpts)
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer engine.Close()

	// Approval coordinator
	coordinatorOpts := coordinator.Options{
		MQTT:                 bus,
		Logger:               log.With("component", "coordinator"),
		Audit:                auditRepo,
		RequestTimeout:       cfg.GetRequestTimeout(),
		Policy:               policy,
		MatchLatestWithoutID: cfg.Approval.MatchLatestWithoutID,
		QoS:                  qos,
	}
	if influxClient != nil {
		coordinatorOpts.Telemetry = influxClient
	}

	coord, err := coordinator.New(coordinatorOpts)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer coord.Close()

	// Controller forwarder (optional)
	if cfg.Controller.Enabled {
		fwd, fwdErr := controller.New(controller.Options{
			MQTT:   bus,
			Logger: log.With("component", "controller"),
			QoS:    qos,
		})
		if fwdErr != nil {
			return fmt.Errorf("creating controller: %w", fwdErr)
		}
		if startErr := fwd.Start(ctx); startErr != nil {
			return fmt.Errorf("starting controller: %w", startErr)
		}
	} else {
		log.Info("controller forwarder disabled")
	}

	// Status API (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthFunc{
			"mqtt":     mqttClient.HealthCheck,
			"database": db.HealthCheck,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient.HealthCheck
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Pending: coord,
			Audit:   auditRepo,
			Version: version,
			Checks:  checks,
		})
		if apiErr != nil {
			return fmt.Errorf("creating status API: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status API: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing status API", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Halcyon Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HALCYON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HALCYON_CONFIG"); path != "" {
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

// mqttAgentAdapter adapts the infrastructure MQTT client to the agents'
// MQTTClient interfaces. The infrastructure Subscribe takes the named
// mqtt.MessageHandler type; the agents declare a plain func type so their
// tests stay free of the paho dependency.
//
// It also fans out per topic: the coordinator and the controller both
// subscribe to the feedback topic, and a second broker subscription on
// the same shared client would replace the first handler.
type mqttAgentAdapter struct {
	client *mqtt.Client

	mu       sync.Mutex
	handlers map[string][]func(topic string, payload []byte) error
}

func newMQTTAgentAdapter(client *mqtt.Client) *mqttAgentAdapter {
	return &mqttAgentAdapter{
		client:   client,
		handlers: make(map[string][]func(string, []byte) error),
	}
}

// Publish implements the agents' MQTTClient.
func (a *mqttAgentAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements the agents' MQTTClient. The first subscriber to a
// topic creates the broker subscription; later subscribers share it.
func (a *mqttAgentAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.handlers[topic] = append(a.handlers[topic], handler)
	if len(a.handlers[topic]) > 1 {
		return nil
	}

	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		a.mu.Lock()
		hs := append([]func(string, []byte) error(nil), a.handlers[t]...)
		a.mu.Unlock()

		var firstErr error
		for _, h := range hs {
			if err := h(t, p); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}
