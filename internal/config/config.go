// Package config loads the adapter's YAML configuration document,
// following the defaults-then-override pattern the teacher's
// cmd/gateway/main.go uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML document, per SPEC_FULL.md §3.
type Config struct {
	Adapter struct {
		RecvQueueSize int    `yaml:"recv_queue_size"`
		LogLevel      string `yaml:"log_level"`
		Development   bool   `yaml:"development"`
	} `yaml:"adapter"`

	Metrics struct {
		Enabled       bool   `yaml:"enabled"`
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"metrics"`

	Eventbus struct {
		Enabled bool     `yaml:"enabled"`
		Servers []string `yaml:"servers"`
		Subject string   `yaml:"subject"`
	} `yaml:"eventbus"`

	WSMonitor struct {
		Enabled       bool   `yaml:"enabled"`
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"wsmonitor"`

	Resilience struct {
		MaxRequests uint32        `yaml:"max_requests"`
		Interval    time.Duration `yaml:"interval"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"resilience"`
}

// Default returns a Config populated with the adapter's defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Adapter.RecvQueueSize = 256
	cfg.Adapter.LogLevel = "info"

	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":9090"

	cfg.Eventbus.Enabled = false
	cfg.Eventbus.Servers = []string{"nats://127.0.0.1:4222"}
	cfg.Eventbus.Subject = "opcua.reports"

	cfg.WSMonitor.Enabled = false
	cfg.WSMonitor.ListenAddress = ":9091"

	cfg.Resilience.MaxRequests = 1
	cfg.Resilience.Timeout = 30 * time.Second

	return cfg
}

// Load reads filename, overlaying it on Default(). A missing file is not
// an error — the caller proceeds with defaults, mirroring the teacher's
// loadConfig.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return cfg, nil
}
