package service

import (
	"context"
	"time"

	"github.com/z0w13/dmserv/internal/client"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// GuildOverview is a guild's reconciliation setup as shown to operators
type GuildOverview struct {
	GuildID    string `json:"guild_id"`
	Name       string `json:"name"`
	SystemID   string `json:"system_id,omitempty"`
	HasToken   bool   `json:"has_token"`
	CategoryID string `json:"category_id,omitempty"`
}

// GuildService looks up guild metadata, caching guild names
type GuildService struct {
	tenants store.TenantStore
	discord client.ResourceClient
	cache   store.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGuildService creates a new guild service
func NewGuildService(
	tenants store.TenantStore,
	discord client.ResourceClient,
	cache store.Cache,
	ttl time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *GuildService {
	return &GuildService{
		tenants: tenants,
		discord: discord,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// GuildName returns the guild's name, or "" when it cannot be looked up
func (s *GuildService) GuildName(ctx context.Context, guildID string) string {
	key := "guild_name:" + guildID

	if cached, err := s.cache.Get(ctx, key); err == nil {
		if name, ok := cached.(string); ok {
			s.metrics.RecordCacheHit("guild_name")
			return name
		}
	}
	s.metrics.RecordCacheMiss("guild_name")

	guild, err := s.discord.GetGuild(ctx, guildID)
	if err != nil {
		s.logger.Debug("Failed to look up guild name",
			zap.String("guild_id", guildID),
			zap.Error(err))
		return ""
	}

	if err := s.cache.Set(ctx, key, guild.Name, s.ttl); err != nil {
		s.logger.Warn("Failed to cache guild name", zap.Error(err))
	}
	return guild.Name
}

// Overview returns the guild's stored setup and name
func (s *GuildService) Overview(ctx context.Context, guildID string) (*GuildOverview, error) {
	tenant, err := s.tenants.GetTenant(ctx, guildID)
	if err != nil {
		return nil, err
	}

	return &GuildOverview{
		GuildID:    tenant.GuildID,
		Name:       s.GuildName(ctx, guildID),
		SystemID:   tenant.SystemID,
		HasToken:   tenant.Token != "",
		CategoryID: tenant.CategoryID,
	}, nil
}
