package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DMSERV_DISCORD_TOKEN
const EnvPrefix = "DMSERV"

// Load reads configuration from an optional YAML file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dmserv/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, defaults and env may be enough
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.register_commands", true)
	v.SetDefault("discord.command_guild_id", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "dmserv")
	v.SetDefault("database.user", "dmserv")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("pluralkit.base_url", "https://api.pluralkit.me/v2")
	v.SetDefault("pluralkit.user_agent", "dmserv (https://github.com/z0w13/dmserv)")
	v.SetDefault("pluralkit.timeout", "10s")
	v.SetDefault("pluralkit.requests_per_second", 2.0)
	v.SetDefault("pluralkit.burst_size", 2)

	v.SetDefault("reconcile.fronters_interval", "60s")
	v.SetDefault("reconcile.roles_enabled", true)
	v.SetDefault("reconcile.roles_interval", "60s")
	v.SetDefault("reconcile.role_source", RoleSourceFronters)
	v.SetDefault("reconcile.lock_ttl", "5m")

	v.SetDefault("stats.interval", "1s")

	v.SetDefault("cache.guild_ttl", "5m")
	v.SetDefault("cache.max_size", 10000)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")

	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 10.0)
	v.SetDefault("rate_limiter.burst_size", 20)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
