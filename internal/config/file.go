package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileChannel is one [[channels]] table.
type FileChannel struct {
	Name     string `toml:"name"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Required bool   `toml:"required"`
	TLS      bool   `toml:"tls"`
}

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ServiceName     string        `toml:"service_name"`
	RPCListen       string        `toml:"rpc_listen"`
	Channels        []FileChannel `toml:"channels"`
	RedisAddr       string        `toml:"redis_addr"`
	RedisDB         int           `toml:"redis_db"`
	RedisRequired   *bool         `toml:"redis_required"`
	MetricsAddr     string        `toml:"metrics_addr"`
	MetricsEnabled  *bool         `toml:"metrics_enabled"`
	JWTSecret       string        `toml:"jwt_secret"`
	JWTIssuer       string        `toml:"jwt_issuer"`
	JWTSubject      string        `toml:"jwt_subject"`
	JWTTTL          string        `toml:"jwt_ttl"`
	StepTimeout     string        `toml:"step_timeout"`
	ShutdownTimeout string        `toml:"shutdown_timeout"`
	LogLevel        string        `toml:"log_level"`
	WatchConfig     *bool         `toml:"watch_config"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.stagehand/config.toml, or "" when the home
// directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".stagehand", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
// Channels have no flag equivalent and replace any existing list.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-name", fc.ServiceName, &cfg.ServiceName)
	s.setString("rpc-listen", fc.RPCListen, &cfg.RPCListen)
	s.setString("redis-addr", fc.RedisAddr, &cfg.RedisAddr)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("jwt-secret", fc.JWTSecret, &cfg.JWTSecret)
	s.setString("jwt-issuer", fc.JWTIssuer, &cfg.JWTIssuer)
	s.setString("jwt-subject", fc.JWTSubject, &cfg.JWTSubject)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("redis-db", fc.RedisDB, &cfg.RedisDB)

	if err := s.setDuration("jwt-ttl", fc.JWTTTL, &cfg.JWTTTL); err != nil {
		return err
	}
	if err := s.setDuration("step-timeout", fc.StepTimeout, &cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBool("redis-required", fc.RedisRequired, &cfg.RedisRequired)
	s.setBool("metrics-enabled", fc.MetricsEnabled, &cfg.MetricsEnabled)
	s.setBool("watch-config", fc.WatchConfig, &cfg.WatchConfig)

	if len(fc.Channels) > 0 {
		cfg.Channels = make([]ChannelConfig, 0, len(fc.Channels))
		for _, ch := range fc.Channels {
			cfg.Channels = append(cfg.Channels, ChannelConfig(ch))
		}
	}
	return nil
}

// Load builds the effective configuration: defaults, then the file at path
// (skipped when path is empty or missing), then the environment. Values for
// flags in changed are left as the caller set them on base.
func Load(base Config, path string, changed map[string]bool) (Config, error) {
	cfg := base
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, err
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
		cfg.ConfigPath = path
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
