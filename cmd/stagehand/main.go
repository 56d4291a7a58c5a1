package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/stagehand/internal/config"
	"github.com/bft-labs/stagehand/internal/service"
	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
	"github.com/bft-labs/stagehand/pkg/rpc"
	"github.com/bft-labs/stagehand/pkg/rpc/auth"
)

const helpDescription = `
Run a service whose components are initialized, started, stopped and
terminated in a declared order.

Startup aborts on the first required component that fails; optional
components are logged and skipped. Shutdown always visits every component.

Configuration is layered: defaults, then $HOME/.stagehand/config.toml (or
--config), then STAGEHAND_* environment variables, then flags.
`

var exampleUsage = strings.TrimSpace(`
  stagehand --service-name devices --rpc-listen 0.0.0.0:9090
  stagehand --config ./stagehand.toml --redis-addr 127.0.0.1:6379 --redis-required
  stagehand config --config ./stagehand.toml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

func resolveConfig(cmd *cobra.Command, cfg config.Config, cfgPath string) (config.Config, error) {
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	return config.Load(cfg, cfgPath, changedFlags(cmd))
}

func masked(cfg config.Config) config.Config {
	if cfg.JWTSecret != "" {
		cfg.JWTSecret = "*****"
	}
	return cfg
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return log.NewConsoleAdapter(os.Stderr, lvl).Logger(), nil
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	boot := log.NewConsoleAdapter(os.Stderr, zerolog.InfoLevel).Logger()

	root := &cobra.Command{
		Use:           "stagehand",
		Short:         "Run a service with an ordered component lifecycle",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			effective, err := resolveConfig(cmd, cfg, cfgPath)
			if err != nil {
				return err
			}

			zl, err := newLogger(effective.LogLevel)
			if err != nil {
				return err
			}
			zl.Info().Interface("config", masked(effective)).Msg("configuration")

			svc, err := service.New(effective, service.WithLogger(log.NewZerologAdapterWithLogger(zl)))
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := svc.Run(ctx); err != nil {
				return fmt.Errorf("run %s: %w", effective.ServiceName, err)
			}
			zl.Info().Msg("stopped")
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			effective, err := resolveConfig(cmd, cfg, cfgPath)
			if err != nil {
				return err
			}
			boot.Info().Interface("config", masked(effective)).Msg("configuration")
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stagehand %s %s/%s\n", getVersion(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(cmd.OutOrStdout(), "  lifecycle %s\n  log %s\n  rpc %s\n  auth %s\n",
				lifecycle.Version, log.Version, rpc.Version, auth.Version)
		},
	}
	root.AddCommand(configCmd, versionCmd)

	// Flags
	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.stagehand/config.toml)")
	flags.StringVar(&cfg.ServiceName, "service-name", cfg.ServiceName, "name of the service")
	flags.StringVar(&cfg.RPCListen, "rpc-listen", cfg.RPCListen, "address the gRPC server listens on")

	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address (cache disabled when empty)")
	flags.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	flags.BoolVar(&cfg.RedisRequired, "redis-required", cfg.RedisRequired, "abort startup when Redis is unreachable")

	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address of the Prometheus endpoint")
	flags.BoolVar(&cfg.MetricsEnabled, "metrics-enabled", cfg.MetricsEnabled, "serve Prometheus metrics")

	flags.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for signing and verifying calls (auth disabled when empty)")
	flags.StringVar(&cfg.JWTIssuer, "jwt-issuer", cfg.JWTIssuer, "issuer claim of issued tokens")
	flags.StringVar(&cfg.JWTSubject, "jwt-subject", cfg.JWTSubject, "subject claim of issued tokens (defaults to service-name)")
	flags.DurationVar(&cfg.JWTTTL, "jwt-ttl", cfg.JWTTTL, "lifetime of issued tokens")
	if err := flags.MarkHidden("jwt-subject"); err != nil {
		boot.Info().Err(err).Msg("failed to hide jwt-subject flag")
	}

	flags.DurationVar(&cfg.StepTimeout, "step-timeout", cfg.StepTimeout, "bound on each lifecycle step (0 disables)")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "bound on the whole shutdown")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "log when the config file changes")

	if err := root.Execute(); err != nil {
		boot.Error().Err(err).Msg("stagehand")
		os.Exit(1)
	}
}
