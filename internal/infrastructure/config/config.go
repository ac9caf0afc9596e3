package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Rail Logic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Security     SecurityConfig     `yaml:"security"`
	Interlocking InterlockingConfig `yaml:"interlocking"`
	Layout       LayoutConfig       `yaml:"layout"`
	Control      ControlConfig      `yaml:"control"`
}

// SiteConfig identifies the layout installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig        `yaml:"jwt"`
	Operators []OperatorConfig `yaml:"operators"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// OperatorConfig is an account allowed to log in to the API.
// PasswordHash is an argon2id PHC string as produced by auth.HashPassword.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// InterlockingConfig contains the routing and timing settings of the dispatcher.
type InterlockingConfig struct {
	// TickIntervalMS is the loco worker polling period. Default: 1000.
	TickIntervalMS int `yaml:"tick_interval_ms"`

	// DebounceIntervalMS is the feedback debounce period. Default: 250.
	DebounceIntervalMS int `yaml:"debounce_interval_ms"`

	// HealthInterval is the command station health check period in
	// seconds. Default: 30.
	HealthInterval int `yaml:"health_interval"`

	// ManualModeTimeout is how long a manual mode request waits for a
	// running train, in seconds. Default: 120.
	ManualModeTimeout int `yaml:"manual_mode_timeout"`

	// NrOfTracksToReserve is 1 or 2. Default: 2.
	NrOfTracksToReserve int `yaml:"nr_of_tracks_to_reserve"`

	// SelectRouteApproach is do_not_care, random, min_track_length or
	// longest_unused. Default: do_not_care.
	SelectRouteApproach string `yaml:"select_route_approach"`

	StopOnFeedbackInFreeTrack bool `yaml:"stop_on_feedback_in_free_track"`
}

// LayoutConfig contains layout loading settings.
type LayoutConfig struct {
	// SeedFile is a YAML layout imported into the database when it is empty.
	SeedFile string `yaml:"seed_file"`
}

// ControlConfig contains command station bridge settings.
type ControlConfig struct {
	// Stations adds command station ids to those referenced by the layout.
	Stations []string `yaml:"stations"`

	// StaleAfter is the silence in seconds after which a command station
	// counts as lost. Default: 90.
	StaleAfter int `yaml:"stale_after"`

	// HealthInterval is how often the core publishes its health, in
	// seconds. Default: 30.
	HealthInterval int `yaml:"health_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RAILLOGIC_SECTION_KEY
// For example: RAILLOGIC_DATABASE_PATH, RAILLOGIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "layout-001",
			Name: "Rail Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/raillogic.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "raillogic-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 150,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Interlocking: InterlockingConfig{
			TickIntervalMS:      1000,
			DebounceIntervalMS:  250,
			HealthInterval:      30,
			ManualModeTimeout:   120,
			NrOfTracksToReserve: 2,
			SelectRouteApproach: "do_not_care",
		},
		Control: ControlConfig{
			StaleAfter:     90,
			HealthInterval: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RAILLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("RAILLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RAILLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RAILLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RAILLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RAILLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RAILLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("RAILLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Layout
	if v := os.Getenv("RAILLOGIC_LAYOUT_SEED_FILE"); v != "" {
		cfg.Layout.SeedFile = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("RAILLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// validSelectRouteApproaches mirrors interlock.ParseSelectRouteApproach.
var validSelectRouteApproaches = []string{"system_default", "do_not_care", "random", "min_track_length", "longest_unused"}

// validOperatorRoles mirrors auth.Role.
var validOperatorRoles = []string{"viewer", "operator", "admin"}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// An empty or short secret would let anyone forge tokens and drive trains.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set RAILLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	seen := make(map[string]bool, len(c.Security.Operators))
	for i, op := range c.Security.Operators {
		switch {
		case op.Username == "":
			errs = append(errs, fmt.Sprintf("security.operators[%d].username is required", i))
		case seen[op.Username]:
			errs = append(errs, fmt.Sprintf("security.operators[%d].username %q is duplicated", i, op.Username))
		}
		seen[op.Username] = true
		if !strings.HasPrefix(op.PasswordHash, "$argon2id$") {
			errs = append(errs, fmt.Sprintf("security.operators[%d].password_hash must be an argon2id hash", i))
		}
		if !contains(validOperatorRoles, op.Role) {
			errs = append(errs, fmt.Sprintf("security.operators[%d].role must be one of %s", i, strings.Join(validOperatorRoles, ", ")))
		}
	}

	il := c.Interlocking
	if il.TickIntervalMS < 1 {
		errs = append(errs, "interlocking.tick_interval_ms must be positive")
	}
	if il.DebounceIntervalMS < 1 {
		errs = append(errs, "interlocking.debounce_interval_ms must be positive")
	}
	if il.NrOfTracksToReserve != 1 && il.NrOfTracksToReserve != 2 {
		errs = append(errs, "interlocking.nr_of_tracks_to_reserve must be 1 or 2")
	}
	if !contains(validSelectRouteApproaches, il.SelectRouteApproach) {
		errs = append(errs, fmt.Sprintf("interlocking.select_route_approach must be one of %s", strings.Join(validSelectRouteApproaches, ", ")))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
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

// GetAccessTokenTTL returns the JWT lifetime as a Duration.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// GetTickInterval returns the loco worker period as a Duration.
func (c InterlockingConfig) GetTickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// GetDebounceInterval returns the feedback debounce period as a Duration.
func (c InterlockingConfig) GetDebounceInterval() time.Duration {
	return time.Duration(c.DebounceIntervalMS) * time.Millisecond
}

// GetHealthInterval returns the command station health check period.
func (c InterlockingConfig) GetHealthInterval() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}

// GetManualModeTimeout returns the manual mode wait as a Duration.
func (c InterlockingConfig) GetManualModeTimeout() time.Duration {
	return time.Duration(c.ManualModeTimeout) * time.Second
}

// GetStaleAfter returns the command station silence limit as a Duration.
func (c ControlConfig) GetStaleAfter() time.Duration {
	return time.Duration(c.StaleAfter) * time.Second
}

// GetHealthInterval returns the core health publish period as a Duration.
func (c ControlConfig) GetHealthInterval() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}
