// Package config holds the stagehand service configuration and its layering:
// defaults, then a TOML file, then STAGEHAND_* environment variables, then
// explicitly set command-line flags.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/stagehand/pkg/log"
)

// MinJWTSecretLength matches the HMAC key length required by the auth package.
const MinJWTSecretLength = 32

// ChannelConfig describes one remote service the node talks to.
type ChannelConfig struct {
	Name     string
	Host     string
	Port     int
	Required bool
	TLS      bool
}

// Config holds the runtime configuration for one stagehand service.
type Config struct {
	ServiceName string
	RPCListen   string

	Channels []ChannelConfig

	RedisAddr     string
	RedisDB       int
	RedisRequired bool

	MetricsAddr    string
	MetricsEnabled bool

	JWTSecret  string
	JWTIssuer  string
	JWTSubject string
	JWTTTL     time.Duration

	StepTimeout     time.Duration
	ShutdownTimeout time.Duration

	LogLevel    string
	WatchConfig bool

	// ConfigPath is the file the configuration was loaded from, if any.
	ConfigPath string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceName:     "stagehand",
		RPCListen:       "127.0.0.1:9090",
		MetricsAddr:     "127.0.0.1:9100",
		MetricsEnabled:  true,
		JWTIssuer:       "stagehand",
		JWTTTL:          15 * time.Minute,
		StepTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// AuthEnabled reports whether calls are signed and verified.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service-name is required")
	}
	if c.RPCListen == "" {
		return fmt.Errorf("rpc-listen is required")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("jwt-secret must be at least %d characters", MinJWTSecretLength)
	}
	if c.JWTSecret != "" && c.JWTTTL < time.Second {
		return fmt.Errorf("jwt-ttl must be at least 1s, got %s", c.JWTTTL)
	}
	if c.JWTSubject == "" {
		c.JWTSubject = c.ServiceName
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step timeout must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.MetricsEnabled && c.MetricsAddr == "" {
		return fmt.Errorf("metrics-addr is required when metrics are enabled")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate name %q", i, ch.Name)
		}
		seen[ch.Name] = true
		if ch.Host == "" {
			return fmt.Errorf("channel %q: host is required", ch.Name)
		}
		if ch.Port < 1 || ch.Port > 65535 {
			return fmt.Errorf("channel %q: port %d out of range 1-65535", ch.Name, ch.Port)
		}
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
