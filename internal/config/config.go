package config

import (
	"errors"
	"time"
)

// Config represents the dmserv service configuration
type Config struct {
	Discord     DiscordConfig     `mapstructure:"discord"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	PluralKit   PluralKitConfig   `mapstructure:"pluralkit"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Server      ServerConfig      `mapstructure:"server"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DiscordConfig represents the bot's gateway and command registration settings
type DiscordConfig struct {
	Token            string `mapstructure:"token"`
	RegisterCommands bool   `mapstructure:"register_commands"`
	// CommandGuildID registers commands on one guild instead of globally
	CommandGuildID string `mapstructure:"command_guild_id"`
}

// DatabaseConfig represents the PostgreSQL settings store configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig represents the Redis pass lock configuration.
// When disabled, pass locks are held in process memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// PluralKitConfig represents the membership API client configuration
type PluralKitConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
}

// ReconcileConfig represents the reconciliation task configuration
type ReconcileConfig struct {
	FrontersInterval time.Duration `mapstructure:"fronters_interval"`
	RolesEnabled     bool          `mapstructure:"roles_enabled"`
	RolesInterval    time.Duration `mapstructure:"roles_interval"`
	// RoleSource is "fronters" (active members) or "members" (whole roster)
	RoleSource string        `mapstructure:"role_source"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// StatsConfig represents process stats collection
type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CacheConfig represents the guild metadata cache
type CacheConfig struct {
	GuildTTL time.Duration `mapstructure:"guild_ttl"`
	MaxSize  int           `mapstructure:"max_size"`
}

// ServerConfig represents the HTTP admin server configuration
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds read-only routes; reconcile and task routes are exempt
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RateLimiterConfig represents the HTTP admin rate limiter
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token is required")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis.host is required when redis is enabled")
	}
	if c.PluralKit.BaseURL == "" {
		return errors.New("pluralkit.base_url is required")
	}
	if c.PluralKit.RequestsPerSecond <= 0 {
		return errors.New("pluralkit.requests_per_second must be positive")
	}
	if c.Reconcile.FrontersInterval <= 0 {
		return errors.New("reconcile.fronters_interval must be positive")
	}
	if c.Reconcile.RolesEnabled && c.Reconcile.RolesInterval <= 0 {
		return errors.New("reconcile.roles_interval must be positive")
	}
	if c.Reconcile.RoleSource == "" {
		c.Reconcile.RoleSource = RoleSourceFronters
	}
	if !isValidRoleSource(c.Reconcile.RoleSource) {
		return errors.New("reconcile.role_source must be one of: fronters, members")
	}
	if c.Reconcile.LockTTL <= 0 {
		return errors.New("reconcile.lock_ttl must be positive")
	}
	if c.Stats.Interval <= 0 {
		return errors.New("stats.interval must be positive")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

const (
	RoleSourceFronters = "fronters"
	RoleSourceMembers  = "members"
)

func isValidRoleSource(source string) bool {
	switch source {
	case RoleSourceFronters, RoleSourceMembers:
		return true
	default:
		return false
	}
}
