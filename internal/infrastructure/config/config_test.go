package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

const validHash = "$argon2id$v=19$m=65536,t=3,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// validConfig returns the defaults plus the settings that have none.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "club-layout"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
security:
  jwt:
    secret: "`+validJWTSecret+`"
  operators:
    - username: anna
      password_hash: "`+validHash+`"
      role: operator
interlocking:
  tick_interval_ms: 500
  nr_of_tracks_to_reserve: 1
  select_route_approach: longest_unused
layout:
  seed_file: /etc/raillogic/layout.yaml
control:
  stations: [cs1, s88]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "club-layout" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "club-layout")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if got := cfg.Interlocking.GetTickInterval(); got != 500*time.Millisecond {
		t.Errorf("tick interval = %v, want 500ms", got)
	}
	if got := cfg.Interlocking.GetDebounceInterval(); got != 250*time.Millisecond {
		t.Errorf("debounce interval = %v, want default 250ms", got)
	}
	if cfg.Interlocking.NrOfTracksToReserve != 1 || cfg.Interlocking.SelectRouteApproach != "longest_unused" {
		t.Errorf("interlocking = %+v", cfg.Interlocking)
	}
	if cfg.Layout.SeedFile != "/etc/raillogic/layout.yaml" {
		t.Errorf("Layout.SeedFile = %q", cfg.Layout.SeedFile)
	}
	if len(cfg.Security.Operators) != 1 || cfg.Security.Operators[0].Role != "operator" {
		t.Errorf("operators = %+v", cfg.Security.Operators)
	}
	if len(cfg.Control.Stations) != 2 || cfg.Control.GetStaleAfter() != 90*time.Second {
		t.Errorf("control = %+v", cfg.Control)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/file.db"
api:
  port: 8080
`)
	t.Setenv("RAILLOGIC_JWT_SECRET", validJWTSecret)
	t.Setenv("RAILLOGIC_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("RAILLOGIC_API_PORT", "9090")
	t.Setenv("RAILLOGIC_MQTT_HOST", "mosquitto")
	t.Setenv("RAILLOGIC_LAYOUT_SEED_FILE", "/tmp/seed.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Host != "mosquitto" {
		t.Errorf("MQTT.Broker.Host = %q, want mosquitto", cfg.MQTT.Broker.Host)
	}
	if cfg.Layout.SeedFile != "/tmp/seed.yaml" {
		t.Errorf("Layout.SeedFile = %q, want env override", cfg.Layout.SeedFile)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid config", modify: func(*Config) {}},
		{
			name:    "missing site ID",
			modify:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id is required",
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "invalid QoS",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "missing JWT secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short JWT secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name: "valid operator",
			modify: func(c *Config) {
				c.Security.Operators = []OperatorConfig{{Username: "anna", PasswordHash: validHash, Role: "admin"}}
			},
		},
		{
			name: "operator with clear text password",
			modify: func(c *Config) {
				c.Security.Operators = []OperatorConfig{{Username: "anna", PasswordHash: "secret", Role: "admin"}}
			},
			wantErr: "argon2id",
		},
		{
			name: "duplicate operator",
			modify: func(c *Config) {
				op := OperatorConfig{Username: "anna", PasswordHash: validHash, Role: "viewer"}
				c.Security.Operators = []OperatorConfig{op, op}
			},
			wantErr: "duplicated",
		},
		{
			name: "unknown role",
			modify: func(c *Config) {
				c.Security.Operators = []OperatorConfig{{Username: "anna", PasswordHash: validHash, Role: "driver"}}
			},
			wantErr: "role must be one of",
		},
		{
			name:    "three tracks to reserve",
			modify:  func(c *Config) { c.Interlocking.NrOfTracksToReserve = 3 },
			wantErr: "nr_of_tracks_to_reserve",
		},
		{
			name:    "unknown route approach",
			modify:  func(c *Config) { c.Interlocking.SelectRouteApproach = "shortest" },
			wantErr: "select_route_approach",
		},
		{
			name:    "zero tick",
			modify:  func(c *Config) { c.Interlocking.TickIntervalMS = 0 },
			wantErr: "tick_interval_ms",
		},
		{
			name:    "influxdb without url",
			modify:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "site.id is required; api.port") {
		t.Errorf("Validate() error = %q, want both problems joined with '; '", err)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := validConfig()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read timeout", cfg.GetReadTimeout(), 30 * time.Second},
		{"write timeout", cfg.GetWriteTimeout(), 150 * time.Second},
		{"idle timeout", cfg.GetIdleTimeout(), 60 * time.Second},
		{"access token ttl", cfg.GetAccessTokenTTL(), time.Hour},
		{"tick", cfg.Interlocking.GetTickInterval(), time.Second},
		{"health", cfg.Interlocking.GetHealthInterval(), 30 * time.Second},
		{"manual mode timeout", cfg.Interlocking.GetManualModeTimeout(), 2 * time.Minute},
		{"core health", cfg.Control.GetHealthInterval(), 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
