package service

import (
	"context"
	"strings"

	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"go.uber.org/zap"
)

// ObservedStateReader reads managed resources from Discord.
// Nothing is cached; every call reflects remote state at call time.
type ObservedStateReader struct {
	discord client.ResourceClient
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewObservedStateReader creates a new observed state reader
func NewObservedStateReader(discord client.ResourceClient, m *metrics.Metrics, logger *zap.Logger) *ObservedStateReader {
	return &ObservedStateReader{
		discord: discord,
		metrics: m,
		logger:  logger,
	}
}

// ReadFronterChannels returns the channels under the tenant's fronter category
func (r *ObservedStateReader) ReadFronterChannels(ctx context.Context, tenant *model.Tenant) (model.ObservedSet[model.NoAttributes], error) {
	channels, err := r.discord.ListChannels(ctx, tenant.GuildID)
	if err != nil {
		r.metrics.RecordFetchError("discord", string(apperrors.FetchHTTP))
		return model.ObservedSet[model.NoAttributes]{}, apperrors.WithGuild(
			apperrors.FetchFailed("list channels", client.StatusCode(err), err), tenant.GuildID)
	}

	entities := make([]model.ObservedEntity[model.NoAttributes], 0, len(channels))
	for _, ch := range channels {
		if ch.ParentID != tenant.CategoryID {
			continue
		}
		entities = append(entities, model.ObservedEntity[model.NoAttributes]{
			RemoteID: ch.ID,
			Name:     ch.Name,
			Position: ch.Position,
		})
	}

	set := model.NewObservedSet(entities)
	if len(set.Extras) > 0 {
		r.logger.Debug("Duplicate fronter channels found",
			zap.String("guild_id", tenant.GuildID),
			zap.Int("count", len(set.Extras)))
	}
	return set, nil
}

// ReadMemberRoles returns the guild's managed member roles
func (r *ObservedStateReader) ReadMemberRoles(ctx context.Context, tenant *model.Tenant) (model.ObservedSet[model.RoleAttributes], error) {
	roles, err := r.discord.ListRoles(ctx, tenant.GuildID)
	if err != nil {
		r.metrics.RecordFetchError("discord", string(apperrors.FetchHTTP))
		return model.ObservedSet[model.RoleAttributes]{}, apperrors.WithGuild(
			apperrors.FetchFailed("list roles", client.StatusCode(err), err), tenant.GuildID)
	}

	entities := make([]model.ObservedEntity[model.RoleAttributes], 0, len(roles))
	for _, role := range roles {
		if !strings.HasSuffix(role.Name, RoleSuffix) {
			continue
		}
		entities = append(entities, model.ObservedEntity[model.RoleAttributes]{
			RemoteID:   role.ID,
			Name:       role.Name,
			Attributes: model.RoleAttributes{Color: role.Color},
		})
	}

	return model.NewObservedSet(entities), nil
}
