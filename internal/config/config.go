// Package config loads the client configuration from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adragomir/pi.nvim/pkg/logger"
)

// Config is the full client configuration. Durations are configured in
// milliseconds to match the agent's own units.
type Config struct {
	// Host and Port locate the agent's RPC listener.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RequestTimeoutMS bounds one request/response round-trip.
	RequestTimeoutMS int `yaml:"requestTimeoutMs"`

	// LivenessIntervalMS and LivenessDelayMS control the connection poll.
	LivenessIntervalMS int `yaml:"livenessIntervalMs"`
	LivenessDelayMS    int `yaml:"livenessDelayMs"`

	// RenderThrottleMS is the minimum spacing between renders.
	RenderThrottleMS int `yaml:"renderThrottleMs"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               9999,
		RequestTimeoutMS:   30000,
		LivenessIntervalMS: 2000,
		LivenessDelayMS:    1000,
		RenderThrottleMS:   50,
		LogLevel:           "info",
	}
}

// Load reads the config file at path. A missing file yields the defaults;
// unknown keys and out-of-range values are errors. Absent keys keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("[config] no config file at %s, using defaults", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("cannot read config file at %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config file at %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file at %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("requestTimeoutMs must be positive")
	}
	if c.LivenessIntervalMS <= 0 {
		return fmt.Errorf("livenessIntervalMs must be positive")
	}
	if c.LivenessDelayMS < 0 {
		return fmt.Errorf("livenessDelayMs must not be negative")
	}
	if c.RenderThrottleMS <= 0 {
		return fmt.Errorf("renderThrottleMs must be positive")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// LivenessInterval returns LivenessIntervalMS as a duration.
func (c Config) LivenessInterval() time.Duration {
	return time.Duration(c.LivenessIntervalMS) * time.Millisecond
}

// LivenessDelay returns LivenessDelayMS as a duration.
func (c Config) LivenessDelay() time.Duration {
	return time.Duration(c.LivenessDelayMS) * time.Millisecond
}

// RenderThrottle returns RenderThrottleMS as a duration.
func (c Config) RenderThrottle() time.Duration {
	return time.Duration(c.RenderThrottleMS) * time.Millisecond
}
