// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the raw YAML configuration tree. Timeout and PollInterval are
// pointers so an explicit zero is distinguishable from an absent key: the
// former is rejected, the latter gets the default.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Timeout      *int   `yaml:"timeout"`       // seconds
	PollInterval *int   `yaml:"poll_interval"` // seconds

	Sensors map[string]SensorConfig `yaml:"sensors"`

	MQTT *MQTTConfig `yaml:"mqtt"`
	Log  LogConfig   `yaml:"log"`
}

// SensorConfig is one Modbus read request. Mandatory keys are pointers so
// a missing key is distinguishable from a zero value.
type SensorConfig struct {
	SlaveID   *int   `yaml:"slave_id"`
	Registry  *int   `yaml:"registry"`
	Length    *int   `yaml:"length"`
	WordOrder string `yaml:"word_order"` // big (default) or little

	Fields map[string]FieldConfig `yaml:"fields"`
}

// FieldConfig maps one output field onto the sensor's register block.
type FieldConfig struct {
	Index    *int     `yaml:"index"`
	Scale    *float64 `yaml:"scale"`
	DataType string   `yaml:"data_type"` // int16 (default) or int32
}

// MQTTConfig configures the publishing sink. Optional; readings go to the
// log sink when absent.
type MQTTConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Cert     string `yaml:"cert"`
	Topic    string `yaml:"topic"`
}

// LogConfig configures rolling file logging. Zero value logs to stdout.
type LogConfig struct {
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Backups   int    `yaml:"backups"`
	Compress  bool   `yaml:"compress"`
}

// Defaults matching the original station gateway setup.
const (
	DefaultHost         = "192.168.1.100"
	DefaultPort         = 502
	DefaultTimeout      = 10 // seconds
	DefaultPollInterval = 10 // seconds
)

// Load reads and parses the YAML file and applies top-level defaults.
// Sensor validation happens in Build.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == nil {
		v := DefaultTimeout
		cfg.Timeout = &v
	} else if *cfg.Timeout < 1 {
		return nil, fmt.Errorf("config: timeout must be >= 1 second, got %d", *cfg.Timeout)
	}
	if cfg.PollInterval == nil {
		v := DefaultPollInterval
		cfg.PollInterval = &v
	} else if *cfg.PollInterval < 1 {
		return nil, fmt.Errorf("config: poll_interval must be >= 1 second, got %d", *cfg.PollInterval)
	}

	return &cfg, nil
}
