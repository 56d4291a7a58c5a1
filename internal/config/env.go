package config

import "os"

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STAGEHAND_"

// ApplyEnvConfig applies configuration from environment variables (STAGEHAND_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-name", os.Getenv(EnvPrefix+"SERVICE_NAME"), &cfg.ServiceName)
	s.setString("rpc-listen", os.Getenv(EnvPrefix+"RPC_LISTEN"), &cfg.RPCListen)
	s.setString("redis-addr", os.Getenv(EnvPrefix+"REDIS_ADDR"), &cfg.RedisAddr)
	s.setString("metrics-addr", os.Getenv(EnvPrefix+"METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("jwt-secret", os.Getenv(EnvPrefix+"JWT_SECRET"), &cfg.JWTSecret)
	s.setString("jwt-issuer", os.Getenv(EnvPrefix+"JWT_ISSUER"), &cfg.JWTIssuer)
	s.setString("jwt-subject", os.Getenv(EnvPrefix+"JWT_SUBJECT"), &cfg.JWTSubject)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("redis-db", os.Getenv(EnvPrefix+"REDIS_DB"), &cfg.RedisDB); err != nil {
		return err
	}

	if err := s.setDuration("jwt-ttl", os.Getenv(EnvPrefix+"JWT_TTL"), &cfg.JWTTTL); err != nil {
		return err
	}
	if err := s.setDuration("step-timeout", os.Getenv(EnvPrefix+"STEP_TIMEOUT"), &cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv(EnvPrefix+"SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBoolFromString("redis-required", os.Getenv(EnvPrefix+"REDIS_REQUIRED"), &cfg.RedisRequired)
	s.setBoolFromString("metrics-enabled", os.Getenv(EnvPrefix+"METRICS_ENABLED"), &cfg.MetricsEnabled)
	s.setBoolFromString("watch-config", os.Getenv(EnvPrefix+"WATCH_CONFIG"), &cfg.WatchConfig)

	return nil
}
