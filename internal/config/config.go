package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion               = 1
	DefaultPath                 = "/etc/mivac/config.yaml"
	DefaultGRPCAddr             = "0.0.0.0:9000"
	DefaultHTTPAddr             = "0.0.0.0:8080"
	DefaultDashboardDir         = "/var/lib/mivac/dashboards"
	DefaultTopicPrefix          = "mivac"
	DefaultKeepAlive            = 30 * time.Second
	DefaultPollInterval         = 30 * time.Second
	DefaultRefreshDelay         = time.Second
	DefaultCallTimeout          = 5 * time.Second
	DefaultMaxRequestsPerMinute = 120
)

var deviceIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Config is the daemon configuration file.
type Config struct {
	SchemaVersion int            `yaml:"schema_version"`
	Core          CoreConfig     `yaml:"core"`
	MQTT          MQTTConfig     `yaml:"mqtt"`
	Devices       []DeviceConfig `yaml:"devices"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

// MQTTConfig points at the broker bridging RPC traffic to the appliances.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	KeepAlive   time.Duration `yaml:"keep_alive"`
}

type DeviceConfig struct {
	ID                   string        `yaml:"id"`
	Name                 string        `yaml:"name"`
	Model                string        `yaml:"model"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	RefreshDelay         time.Duration `yaml:"refresh_delay"`
	CallTimeout          time.Duration `yaml:"call_timeout"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
}

// Load reads .env if present, parses the YAML config file, applies
// environment overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document without applying defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Core.HTTPAddr = getEnv("MIVAC_HTTP_ADDR", cfg.Core.HTTPAddr)
	cfg.Core.GRPCAddr = getEnv("MIVAC_GRPC_ADDR", cfg.Core.GRPCAddr)
	cfg.MQTT.Broker = getEnv("MIVAC_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Username = getEnv("MIVAC_MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MIVAC_MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = getEnv("MIVAC_MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	if limit := getEnvInt("MIVAC_MAX_REQUESTS_PER_MINUTE", 0); limit > 0 {
		for i := range cfg.Devices {
			cfg.Devices[i].MaxRequestsPerMinute = limit
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = DefaultKeepAlive
	}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.PollInterval == 0 {
			d.PollInterval = DefaultPollInterval
		}
		if d.RefreshDelay == 0 {
			d.RefreshDelay = DefaultRefreshDelay
		}
		if d.CallTimeout == 0 {
			d.CallTimeout = DefaultCallTimeout
		}
		if d.MaxRequestsPerMinute == 0 {
			d.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	seen := make(map[string]bool)
	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if !deviceIDPattern.MatchString(d.ID) {
			return fmt.Errorf("devices[%d].id %q does not match %s", i, d.ID, deviceIDPattern.String())
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id: %s", d.ID)
		}
		seen[d.ID] = true
		if d.PollInterval < 0 || d.RefreshDelay < 0 || d.CallTimeout < 0 {
			return fmt.Errorf("device %s: durations must not be negative", d.ID)
		}
		if d.MaxRequestsPerMinute < 0 {
			return fmt.Errorf("device %s: max_requests_per_minute must not be negative", d.ID)
		}
	}
	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg != nil && len(cfg.Devices) > 0 {
		enabled["vacuum"] = true
	}
	return enabled
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
