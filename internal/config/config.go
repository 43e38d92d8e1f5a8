// Package config loads the Heron configuration from an optional YAML file
// and HERON_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/open-sustainability/heron/internal/domain"
)

// Load reads configuration with the following precedence, lowest first:
// built-in defaults, the config file (when path is non-empty), then
// environment variables. Environment variables use the HERON_ prefix with
// underscores for nesting, e.g. HERON_SERVER_PORT=9090 or
// HERON_REPOSITORY_DRIVER=postgres.
func Load(path string) (*domain.Config, error) {
	v := viper.New()

	applyDefaults(v, domain.DefaultConfig())

	v.SetEnvPrefix("HERON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults seeds viper with the default configuration so that env vars
// and the config file only need to override what differs.
func applyDefaults(v *viper.Viper, def *domain.Config) {
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)

	v.SetDefault("rule_set_dir", def.RuleSetDir)

	v.SetDefault("repository.driver", def.Repository.Driver)
	v.SetDefault("repository.sqlite_path", def.Repository.SQLitePath)

	v.SetDefault("cache.type", def.Cache.Type)
	v.SetDefault("cache.local_max_size", def.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", def.Cache.LocalTTL)
	v.SetDefault("cache.score_ttl", def.Cache.ScoreTTL)

	v.SetDefault("event_bus.type", def.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", def.EventBus.ChannelBufferSize)

	v.SetDefault("ledger.max_attempts", def.Ledger.MaxAttempts)
	v.SetDefault("ledger.backoff_ms", def.Ledger.BackoffMs)
	v.SetDefault("ledger.timeout_ms", def.Ledger.TimeoutMs)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetDefault("tracing.enabled", def.Tracing.Enabled)
	v.SetDefault("tracing.service_name", def.Tracing.ServiceName)
}

// Validate checks configuration consistency before any component starts.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: invalid port %d", cfg.Server.Port)
	}

	switch cfg.Repository.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("repository.driver: unsupported driver %q", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("cache.type: unsupported type %q", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "", "channel", "nats":
	default:
		return fmt.Errorf("event_bus.type: unsupported type %q", cfg.EventBus.Type)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", cfg.Logging.Level)
	}

	if cfg.Ledger.MaxAttempts < 0 {
		return fmt.Errorf("ledger.max_attempts: must be >= 0")
	}

	return nil
}
