package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Beamline Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Beamline   BeamlineConfig   `yaml:"beamline"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Gating     GatingConfig     `yaml:"gating"`
	Rendezvous RendezvousConfig `yaml:"rendezvous"`
	Aperture   ApertureConfig   `yaml:"aperture"`
	Scan       ScanConfig       `yaml:"scan"`
}

// BeamlineConfig identifies the beamline instance this daemon controls.
type BeamlineConfig struct {
	// Name is the beamline identifier used in logs and deposition records
	// (e.g., "BL03I").
	Name string `yaml:"name"`

	// InsertionPrefix addresses the insertion-device axes, which live on a
	// different control-system prefix than the endstation hardware.
	InsertionPrefix string `yaml:"insertion_prefix"`

	// DetectorID is the deposition detector identifier for this endstation.
	DetectorID int `yaml:"detector_id"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker carries hardware command/acknowledge traffic and the
// analysis-service job topics.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP server settings for the plan runner endpoints.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for beamline telemetry.
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

// GatingConfig controls the top-up gate that delays collection start when a
// facility beam refill would otherwise interrupt exposure.
type GatingConfig struct {
	// AllowedModes lists facility modes in which top-up gating applies.
	// Outside these modes gating is disabled and collection proceeds
	// immediately (fail-open, matching facility operations policy).
	AllowedModes []string `yaml:"allowed_modes"`

	// OpsOverheadSeconds is the fixed operational overhead added to the
	// exposure time when estimating total run duration (centring moves,
	// rotation ramp-up, readout).
	OpsOverheadSeconds float64 `yaml:"ops_overhead_seconds"`

	// PollIntervalMS is how often the gate re-reads the refill countdown
	// while a refill is in progress.
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// RendezvousConfig controls the wait for analysis-service results.
type RendezvousConfig struct {
	// TimeoutSeconds is the maximum time to wait for a centring result
	// before falling back to the pre-scan position.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// ApertureConfig controls aperture size selection from centring results.
type ApertureConfig struct {
	// SmallThresholdVoxels selects the small aperture when the best
	// crystal's bounding box spans strictly fewer than this many grid
	// boxes along the fast axis.
	SmallThresholdVoxels int `yaml:"small_threshold_voxels"`
}

// ScanConfig contains grid-scan plan settings.
type ScanConfig struct {
	// OmegaToleranceDeg is how far the rotation axis may be from its
	// configured start angle before the scan is rejected as invalid.
	OmegaToleranceDeg float64 `yaml:"omega_tolerance_deg"`

	// SetStubOffsets re-centres the sample stages at the found position
	// after the final move, making it the logical zero for later work.
	SetStubOffsets bool `yaml:"set_stub_offsets"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BEAMLINE_SECTION_KEY
// For example: BEAMLINE_DATABASE_PATH, BEAMLINE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Beamline: BeamlineConfig{
			Name:            "BL00S",
			InsertionPrefix: "SR00S",
			DetectorID:      78,
		},
		Database: DatabaseConfig{
			Path:        "./data/beamline.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "beamline-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 5005,
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
		Gating: GatingConfig{
			AllowedModes:       []string{"User", "Special"},
			OpsOverheadSeconds: 30.0,
			PollIntervalMS:     100,
		},
		Rendezvous: RendezvousConfig{
			TimeoutSeconds: 180.0,
		},
		Aperture: ApertureConfig{
			SmallThresholdVoxels: 2,
		},
		Scan: ScanConfig{
			OmegaToleranceDeg: 0.1,
			SetStubOffsets:    false,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BEAMLINE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Beamline
	if v := os.Getenv("BEAMLINE_NAME"); v != "" {
		cfg.Beamline.Name = v
	}

	// Database
	if v := os.Getenv("BEAMLINE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BEAMLINE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BEAMLINE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BEAMLINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("BEAMLINE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("BEAMLINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Beamline validation
	if c.Beamline.Name == "" {
		errs = append(errs, "beamline.name is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Gating validation
	if len(c.Gating.AllowedModes) == 0 {
		errs = append(errs, "gating.allowed_modes must list at least one facility mode")
	}
	if c.Gating.OpsOverheadSeconds < 0 {
		errs = append(errs, "gating.ops_overhead_seconds must not be negative")
	}
	if c.Gating.PollIntervalMS <= 0 {
		errs = append(errs, "gating.poll_interval_ms must be positive")
	}

	// Rendezvous validation
	if c.Rendezvous.TimeoutSeconds <= 0 {
		errs = append(errs, "rendezvous.timeout_seconds must be positive")
	}

	// Aperture validation
	if c.Aperture.SmallThresholdVoxels < 1 {
		errs = append(errs, "aperture.small_threshold_voxels must be at least 1")
	}

	// Scan validation
	if c.Scan.OmegaToleranceDeg <= 0 {
		errs = append(errs, "scan.omega_tolerance_deg must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetOpsOverhead returns the gating operational overhead as a Duration.
func (c *Config) GetOpsOverhead() time.Duration {
	return time.Duration(c.Gating.OpsOverheadSeconds * float64(time.Second))
}

// GetGatePollInterval returns the top-up gate poll interval as a Duration.
func (c *Config) GetGatePollInterval() time.Duration {
	return time.Duration(c.Gating.PollIntervalMS) * time.Millisecond
}

// GetRendezvousTimeout returns the analysis result wait timeout as a Duration.
func (c *Config) GetRendezvousTimeout() time.Duration {
	return time.Duration(c.Rendezvous.TimeoutSeconds * float64(time.Second))
}
