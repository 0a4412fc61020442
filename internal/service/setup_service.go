package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

// DefaultFronterCategory is the category name used when none is given
const DefaultFronterCategory = "Current Fronters"

// ErrInvalidSystemID is returned for system ids that are not letters only
var ErrInvalidSystemID = errors.New("invalid system id")

// SetupService persists per-guild settings
type SetupService struct {
	tenants   store.TenantStore
	pluralkit client.MembershipClient
	discord   client.ResourceClient
	logger    *zap.Logger
}

// NewSetupService creates a new setup service
func NewSetupService(
	tenants store.TenantStore,
	pluralkit client.MembershipClient,
	discord client.ResourceClient,
	logger *zap.Logger,
) *SetupService {
	return &SetupService{
		tenants:   tenants,
		pluralkit: pluralkit,
		discord:   discord,
		logger:    logger,
	}
}

// SetupPluralKit stores the guild's system and token, then checks that the
// system can be read. Settings stay saved when the check fails.
func (s *SetupService) SetupPluralKit(ctx context.Context, guildID, userID, rawSystemID, token string) (*client.SystemInfo, error) {
	systemID, ok := util.SanitizeSystemID(rawSystemID)
	if !ok {
		return nil, fmt.Errorf("%w, %s", ErrInvalidSystemID, systemID)
	}

	err := s.tenants.SaveGuildSettings(ctx, &model.GuildSettings{
		GuildID:  guildID,
		UserID:   userID,
		SystemID: systemID,
		Token:    strings.TrimSpace(token),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("PluralKit settings saved",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("system_id", systemID),
		zap.Bool("token", token != ""))

	system, err := s.pluralkit.GetSystem(ctx, systemID, strings.TrimSpace(token))
	if err != nil {
		return nil, apperrors.WithGuild(err, guildID)
	}
	return system, nil
}

// SetupFronters finds the named category, creating it hidden from @everyone
// when missing, and stores it as the guild's fronter category.
func (s *SetupService) SetupFronters(ctx context.Context, guildID, name string) (*client.Channel, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultFronterCategory
	}

	channels, err := s.discord.ListChannels(ctx, guildID)
	if err != nil {
		return nil, false, apperrors.WithGuild(
			apperrors.FetchFailed("list channels", client.StatusCode(err), err), guildID)
	}

	var category *client.Channel
	for i := range channels {
		if channels[i].Kind == client.ChannelKindCategory && strings.EqualFold(channels[i].Name, name) {
			category = &channels[i]
			break
		}
	}

	created := false
	if category == nil {
		category, err = s.discord.CreateChannel(ctx, guildID, client.ChannelSpec{
			Name:         name,
			Kind:         client.ChannelKindCategory,
			DenyEveryone: client.PermissionViewChannel,
		})
		if err != nil {
			return nil, false, apperrors.ApplyFailed(guildID, "create category", err)
		}
		created = true
	}

	err = s.tenants.SaveFronterCategory(ctx, &model.FronterCategory{
		GuildID:    guildID,
		CategoryID: category.ID,
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Fronter category saved",
		zap.String("guild_id", guildID),
		zap.String("category_id", category.ID),
		zap.String("name", category.Name),
		zap.Bool("created", created))

	return category, created, nil
}
