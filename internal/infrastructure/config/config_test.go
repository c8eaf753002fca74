package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "site:\n  id: test-site\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want test-site", cfg.Site.ID)
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want localhost", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Approval.RequestTimeout != 30 {
		t.Errorf("Approval.RequestTimeout = %d, want 30", cfg.Approval.RequestTimeout)
	}
	if cfg.Approval.DecisionBudget != 100 {
		t.Errorf("Approval.DecisionBudget = %d, want 100", cfg.Approval.DecisionBudget)
	}
	if cfg.Approval.FloodThreshold != 5 {
		t.Errorf("Approval.FloodThreshold = %d, want 5", cfg.Approval.FloodThreshold)
	}
	if cfg.Approval.SafetyPolicy != "fail-open" {
		t.Errorf("Approval.SafetyPolicy = %q, want fail-open", cfg.Approval.SafetyPolicy)
	}
	if cfg.Approval.MatchLatestWithoutID {
		t.Error("Approval.MatchLatestWithoutID = true, want false by default")
	}
	if len(cfg.Approval.SensitiveRooms) != 1 || cfg.Approval.SensitiveRooms[0] != "bedroom" {
		t.Errorf("Approval.SensitiveRooms = %v, want [bedroom]", cfg.Approval.SensitiveRooms)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
site:
  id: house-42
mqtt:
  broker:
    host: broker.local
    port: 8883
    tls: true
approval:
  request_timeout: 10
  safety_policy: fail-closed
  match_latest_without_id: true
  sensitive_rooms: [bedroom, nursery]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want broker.local", cfg.MQTT.Broker.Host)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("MQTT.Broker.TLS = false, want true")
	}
	if cfg.Approval.RequestTimeout != 10 {
		t.Errorf("Approval.RequestTimeout = %d, want 10", cfg.Approval.RequestTimeout)
	}
	if cfg.Approval.SafetyPolicy != "fail-closed" {
		t.Errorf("Approval.SafetyPolicy = %q, want fail-closed", cfg.Approval.SafetyPolicy)
	}
	if !cfg.Approval.MatchLatestWithoutID {
		t.Error("Approval.MatchLatestWithoutID = false, want true")
	}
	if len(cfg.Approval.SensitiveRooms) != 2 {
		t.Errorf("SensitiveRooms = %v, want two entries", cfg.Approval.SensitiveRooms)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HALCYON_MQTT_HOST", "env-broker")
	t.Setenv("HALCYON_DATABASE_PATH", "/tmp/env.db")

	path := writeConfig(t, "mqtt:\n  broker:\n    host: file-broker\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want env override env-broker", cfg.MQTT.Broker.Host)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want /tmp/env.db", cfg.Database.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with missing file: expected error, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(_ *Config) {}, ""},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"empty site id", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"zero request timeout", func(c *Config) { c.Approval.RequestTimeout = 0 }, "request_timeout"},
		{"negative budget", func(c *Config) { c.Approval.DecisionBudget = -1 }, "decision_budget"},
		{"zero flood threshold", func(c *Config) { c.Approval.FloodThreshold = 0 }, "flood_threshold"},
		{"night start out of range", func(c *Config) { c.Approval.NightStartHour = 24 }, "night_start_hour"},
		{"unknown safety policy", func(c *Config) { c.Approval.SafetyPolicy = "fail-maybe" }, "safety_policy"},
		{"bad api port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"reasoner enabled without url", func(c *Config) {
			c.Reasoner.Enabled = true
			c.Reasoner.URL = ""
		}, "reasoner.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetRequestTimeout(); got != 30*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetDecisionBudget(); got != 100*time.Second {
		t.Errorf("GetDecisionBudget() = %v, want 100s", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
}
