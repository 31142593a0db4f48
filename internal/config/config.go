// Package config loads the sensor's settings from an optional YAML file
// and the environment. Environment variables take precedence over the
// file so a deployment can override a baked-in file without editing it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/laurarmit/DogBarkProject/internal/deviceid"
)

// Config holds application configuration
type Config struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	DeviceID       string        `yaml:"device_id"`   // empty derives it from the host
	SensorType     string        `yaml:"sensor_type"` // "usb" | "mock"

	MQTT    MQTTConfig    `yaml:"mqtt"`
	Journal JournalConfig `yaml:"journal"`
	GRPC    GRPCConfig    `yaml:"grpc"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the metrics server
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // "console" | "json"
}

// MQTTConfig configures the broker connection
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TLSCert        string        `yaml:"tls_cert"` // client certificate, e.g. an AWS IoT thing cert
	TLSKey         string        `yaml:"tls_key"`
	TLSCA          string        `yaml:"tls_ca"` // empty uses the system roots
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// JournalConfig configures the local history of published readings
type JournalConfig struct {
	Type      string        `yaml:"type"`    // "memory" | "sqlite"
	DBPath    string        `yaml:"db_path"` // used when Type=sqlite
	Retention time.Duration `yaml:"retention"`
}

// GRPCConfig configures the status service
type GRPCConfig struct {
	Addr    string `yaml:"addr"` // empty disables the gRPC server
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	TLSCA   string `yaml:"tls_ca"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SampleInterval: 5 * time.Second,
		SensorType:     "usb",
		MQTT: MQTTConfig{
			ConnectTimeout: 30 * time.Second,
			PublishTimeout: 10 * time.Second,
		},
		Journal: JournalConfig{
			Type:      "memory",
			DBPath:    "./readings.db",
			Retention: 30 * 24 * time.Hour,
		},
		GRPC:        GRPCConfig{Addr: ":50051"},
		MetricsAddr: ":9100",
		LogLevel:    "debug",
		LogFormat:   "console",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file over cfg. ${VAR} references in the file are
// expanded from the environment.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides settings from environment variables. Variables that
// are set but empty clear optional addresses, which disables that server.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	nonEmpty := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	dur("SAMPLE_INTERVAL", &c.SampleInterval)
	nonEmpty("DEVICE_ID", &c.DeviceID)
	nonEmpty("SENSOR_TYPE", &c.SensorType)

	nonEmpty("MQTT_BROKER", &c.MQTT.Broker)
	nonEmpty("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	nonEmpty("MQTT_USERNAME", &c.MQTT.Username)
	nonEmpty("MQTT_PASSWORD", &c.MQTT.Password)
	nonEmpty("MQTT_TLS_CERT", &c.MQTT.TLSCert)
	nonEmpty("MQTT_TLS_KEY", &c.MQTT.TLSKey)
	nonEmpty("MQTT_TLS_CA", &c.MQTT.TLSCA)
	dur("MQTT_CONNECT_TIMEOUT", &c.MQTT.ConnectTimeout)
	dur("MQTT_PUBLISH_TIMEOUT", &c.MQTT.PublishTimeout)

	nonEmpty("REPO_TYPE", &c.Journal.Type)
	nonEmpty("DB_PATH", &c.Journal.DBPath)
	dur("RETENTION", &c.Journal.Retention)

	str("GRPC_ADDR", &c.GRPC.Addr)
	nonEmpty("TLS_CERT", &c.GRPC.TLSCert)
	nonEmpty("TLS_KEY", &c.GRPC.TLSKey)
	nonEmpty("TLS_CA", &c.GRPC.TLSCA)

	str("METRICS_ADDR", &c.MetricsAddr)
	nonEmpty("LOG_LEVEL", &c.LogLevel)
	nonEmpty("LOG_FORMAT", &c.LogFormat)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample_interval must be positive, got %s", c.SampleInterval))
	}
	if c.DeviceID != "" {
		id, err := deviceid.Parse(c.DeviceID)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.DeviceID = id
		}
	}
	switch c.SensorType {
	case "usb", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown sensor_type %q (valid: usb, mock)", c.SensorType))
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if (c.MQTT.TLSCert == "") != (c.MQTT.TLSKey == "") {
		errs = append(errs, errors.New("mqtt.tls_cert and mqtt.tls_key must be set together"))
	}

	switch c.Journal.Type {
	case "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			errs = append(errs, errors.New("journal.db_path is required for the sqlite journal"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal.type %q (valid: memory, sqlite)", c.Journal.Type))
	}
	if c.Journal.Retention < 0 {
		errs = append(errs, fmt.Errorf("journal.retention must not be negative, got %s", c.Journal.Retention))
	}

	if c.GRPC.TLSCert != "" && (c.GRPC.TLSKey == "" || c.GRPC.TLSCA == "") {
		errs = append(errs, errors.New("grpc.tls_cert requires grpc.tls_key and grpc.tls_ca"))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: console, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}
