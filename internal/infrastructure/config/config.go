package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Halcyon Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Reasoner   ReasonerConfig   `yaml:"reasoner"`
	Controller ControllerConfig `yaml:"controller"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings for the decision log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for decision telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ApprovalConfig contains the command-approval workflow settings.
type ApprovalConfig struct {
	// RequestTimeout is how long the coordinator waits for a supervisor
	// decision before applying the safety policy (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// DecisionBudget is the wall-clock budget for the external reasoning
	// call (seconds).
	DecisionBudget int `yaml:"decision_budget"`

	// NightStartHour / NightEndHour bound the night window. The window
	// covers hour >= NightStartHour or hour <= NightEndHour.
	NightStartHour int `yaml:"night_start_hour"`
	NightEndHour   int `yaml:"night_end_hour"`

	// FloodThreshold is the maximum room count before a batch is rejected
	// outright.
	FloodThreshold int `yaml:"flood_threshold"`

	// SensitiveRooms lists rooms that trigger a warning during the night
	// window. Matching is case-insensitive.
	SensitiveRooms []string `yaml:"sensitive_rooms"`

	// SafetyPolicy selects the fallback verdict when no decision is
	// available in time: "fail-open" (approve, the default) or
	// "fail-closed" (reject). Fail-open actuates physical devices without
	// supervisor sign-off; change with care.
	SafetyPolicy string `yaml:"safety_policy"`

	// MatchLatestWithoutID enables the compatibility path that matches a
	// decision carrying no request_id to the most recently created pending
	// request. Off by default: under concurrent in-flight requests this
	// can attribute a decision to the wrong batch.
	MatchLatestWithoutID bool `yaml:"match_latest_without_id"`
}

// ReasonerConfig contains settings for the external reasoning call.
type ReasonerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
}

// ControllerConfig contains light-controller forwarder settings.
type ControllerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HALCYON_SECTION_KEY
// For example: HALCYON_MQTT_HOST, HALCYON_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The approval defaults match the observed deployment: 30s request timeout,
// 100s reasoning budget, 22:00-06:00 night window, flood threshold of 5
// rooms, and a fail-open safety policy.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Halcyon",
			Timezone: "UTC",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "halcyon-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/halcyon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Approval: ApprovalConfig{
			RequestTimeout: 30,
			DecisionBudget: 100,
			NightStartHour: 22,
			NightEndHour:   6,
			FloodThreshold: 5,
			SensitiveRooms: []string{"bedroom"},
			SafetyPolicy:   "fail-open",
		},
		Reasoner: ReasonerConfig{
			URL:   "http://localhost:11434",
			Model: "qwen2.5",
		},
		Controller: ControllerConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HALCYON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HALCYON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HALCYON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HALCYON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HALCYON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HALCYON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HALCYON_REASONER_URL"); v != "" {
		cfg.Reasoner.URL = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Approval.RequestTimeout <= 0 {
		errs = append(errs, "approval.request_timeout must be positive")
	}
	if c.Approval.DecisionBudget <= 0 {
		errs = append(errs, "approval.decision_budget must be positive")
	}
	if c.Approval.FloodThreshold <= 0 {
		errs = append(errs, "approval.flood_threshold must be positive")
	}
	if c.Approval.NightStartHour < 0 || c.Approval.NightStartHour > 23 {
		errs = append(errs, "approval.night_start_hour must be between 0 and 23")
	}
	if c.Approval.NightEndHour < 0 || c.Approval.NightEndHour > 23 {
		errs = append(errs, "approval.night_end_hour must be between 0 and 23")
	}
	switch c.Approval.SafetyPolicy {
	case "fail-open", "fail-closed":
	default:
		errs = append(errs, "approval.safety_policy must be \"fail-open\" or \"fail-closed\"")
	}

	if c.Reasoner.Enabled && c.Reasoner.URL == "" {
		errs = append(errs, "reasoner.url is required when reasoner.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the approval request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Approval.RequestTimeout) * time.Second
}

// GetDecisionBudget returns the reasoning-call budget as a Duration.
func (c *Config) GetDecisionBudget() time.Duration {
	return time.Duration(c.Approval.DecisionBudget) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
