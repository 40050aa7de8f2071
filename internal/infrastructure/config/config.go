package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRSCPPort is the TCP port the E3DC RSCP service listens on.
const DefaultRSCPPort = 5033

// redactedValue replaces secrets when rendering the configuration.
const redactedValue = "***REDACTED***"

// Config is the root configuration structure for the E3DC MQTT bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	E3DC     E3DCConfig     `yaml:"e3dc"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Duration wraps time.Duration so YAML values can use Go duration
// notation such as "5s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// E3DCConfig contains the device endpoint, RSCP credentials, and
// polling cadences.
type E3DCConfig struct {
	// Host is the device address, either "host" or "host:port".
	// The default RSCP port is applied when none is given.
	Host string `yaml:"host"`

	// Username and Password are the E3DC portal credentials the device
	// expects during RSCP authentication.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Key is the RSCP encryption key configured on the device itself
	// (Main Page -> Personalize -> User profile -> RSCP password).
	Key string `yaml:"key"`

	// PollInterval is the cadence for live status readings.
	PollInterval Duration `yaml:"poll_interval"`

	// StatisticsInterval is the cadence for daily statistics and
	// per-battery detail readings.
	StatisticsInterval Duration `yaml:"statistics_interval"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
}

// Address returns the device endpoint in host:port form, applying the
// default RSCP port when the configured host carries none.
func (e E3DCConfig) Address() string {
	if _, _, err := net.SplitHostPort(e.Host); err == nil {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(DefaultRSCPPort))
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// Broker is the broker URI, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker"`

	// RootTopic is the leading segment of every published topic.
	RootTopic string `yaml:"root_topic"`

	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	PublishTimeout Duration `yaml:"publish_timeout"`
}

// DatabaseConfig contains settings for the optional SQLite archive.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
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

// APIConfig contains settings for the health and metrics endpoint.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: E3DC_BRIDGE_SECTION_KEY
// For example: E3DC_BRIDGE_E3DC_PASSWORD, E3DC_BRIDGE_MQTT_BROKER
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
		E3DC: E3DCConfig{
			PollInterval:       Duration(5 * time.Second),
			StatisticsInterval: Duration(5 * time.Minute),
			ConnectTimeout:     Duration(10 * time.Second),
			ReadTimeout:        Duration(30 * time.Second),
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			RootTopic:      "e3dc",
			ConnectTimeout: Duration(10 * time.Second),
			PublishTimeout: Duration(5 * time.Second),
		},
		Database: DatabaseConfig{
			Path:      "./data/e3dc-bridge.db",
			Retention: Duration(720 * time.Hour),
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Listen: ":9100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: E3DC_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("E3DC_BRIDGE_E3DC_HOST"); v != "" {
		cfg.E3DC.Host = v
	}
	if v := os.Getenv("E3DC_BRIDGE_E3DC_USERNAME"); v != "" {
		cfg.E3DC.Username = v
	}
	if v := os.Getenv("E3DC_BRIDGE_E3DC_PASSWORD"); v != "" {
		cfg.E3DC.Password = v
	}
	if v := os.Getenv("E3DC_BRIDGE_E3DC_KEY"); v != "" {
		cfg.E3DC.Key = v
	}

	// MQTT
	if v := os.Getenv("E3DC_BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("E3DC_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("E3DC_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// Database
	if v := os.Getenv("E3DC_BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("E3DC_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.E3DC.Host == "" {
		errs = append(errs, "e3dc.host is required")
	}
	if c.E3DC.Username == "" {
		errs = append(errs, "e3dc.username is required")
	}
	if c.E3DC.Password == "" {
		errs = append(errs, "e3dc.password is required (set E3DC_BRIDGE_E3DC_PASSWORD environment variable)")
	}
	if c.E3DC.Key == "" {
		errs = append(errs, "e3dc.key is required (set E3DC_BRIDGE_E3DC_KEY environment variable)")
	}
	if c.E3DC.PollInterval <= 0 {
		errs = append(errs, "e3dc.poll_interval must be positive")
	}
	if c.E3DC.StatisticsInterval <= 0 {
		errs = append(errs, "e3dc.statistics_interval must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.RootTopic == "" {
		errs = append(errs, "mqtt.root_topic is required")
	}

	// Archive validation
	if c.Database.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when database.enabled is true")
		}
		if c.Database.Retention.Std() < time.Hour {
			errs = append(errs, "database.retention must be at least 1h")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb.enabled is true (set E3DC_BRIDGE_INFLUXDB_TOKEN environment variable)")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb.enabled is true")
		}
	}

	// API validation
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, "api.listen is required when api.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// String renders the configuration as YAML with secrets redacted.
// Safe for startup logging.
func (c *Config) String() string {
	clone := *c
	clone.E3DC.Password = redactSecret(clone.E3DC.Password)
	clone.E3DC.Key = redactSecret(clone.E3DC.Key)
	clone.MQTT.Password = redactSecret(clone.MQTT.Password)
	clone.InfluxDB.Token = redactSecret(clone.InfluxDB.Token)

	out, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Sprintf("config unprintable: %v", err)
	}
	return string(out)
}

// redactSecret masks a secret for display, leaving empty values empty
// so unset fields remain visibly unset.
func redactSecret(v string) string {
	if v == "" {
		return ""
	}
	return redactedValue
}
