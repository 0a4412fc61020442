package client

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ChannelKind is the subset of Discord channel types the service manages
type ChannelKind int

const (
	ChannelKindOther ChannelKind = iota
	ChannelKindVoice
	ChannelKindCategory
)

// Permission bits used on managed channels
const (
	PermissionConnect     = discordgo.PermissionVoiceConnect
	PermissionViewChannel = discordgo.PermissionViewChannel
)

// Channel is a guild channel as seen by the reconciler
type Channel struct {
	ID       string
	GuildID  string
	Name     string
	ParentID string
	Position int
	Kind     ChannelKind
}

// Role is a guild role as seen by the reconciler
type Role struct {
	ID    string
	Name  string
	Color int
}

// Guild holds the guild metadata shown to users
type Guild struct {
	ID   string
	Name string
}

// ChannelSpec describes a channel to create.
// DenyEveryone is denied to @everyone, whose role id equals the guild id.
type ChannelSpec struct {
	Name         string
	Kind         ChannelKind
	ParentID     string
	Position     int
	DenyEveryone int64
}

// ResourceClient manages channels and roles in a guild
type ResourceClient interface {
	GetGuild(ctx context.Context, guildID string) (*Guild, error)
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	ListChannels(ctx context.Context, guildID string) ([]Channel, error)
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	MoveChannel(ctx context.Context, channelID string, position int) error

	ListRoles(ctx context.Context, guildID string) ([]Role, error)
	CreateRole(ctx context.Context, guildID, name string, color int) (*Role, error)
	EditRoleColor(ctx context.Context, guildID, roleID string, color int) error
	DeleteRole(ctx context.Context, guildID, roleID string) error
}

// DiscordClient implements ResourceClient over a discordgo session's REST API
type DiscordClient struct {
	session *discordgo.Session
	logger  *zap.Logger
}

// NewDiscordClient creates a new Discord resource client
func NewDiscordClient(session *discordgo.Session, logger *zap.Logger) *DiscordClient {
	return &DiscordClient{
		session: session,
		logger:  logger,
	}
}

// GetGuild retrieves guild metadata
func (c *DiscordClient) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	guild, err := c.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &Guild{ID: guild.ID, Name: guild.Name}, nil
}

// GetChannel retrieves a single channel
func (c *DiscordClient) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	channel, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	result := toChannel(channel)
	return &result, nil
}

// ListChannels retrieves all channels of a guild
func (c *DiscordClient) ListChannels(ctx context.Context, guildID string) ([]Channel, error) {
	channels, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	result := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		result = append(result, toChannel(ch))
	}
	return result, nil
}

// CreateChannel creates a voice channel or category
func (c *DiscordClient) CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (*Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     spec.Name,
		Type:     fromChannelKind(spec.Kind),
		Position: spec.Position,
		ParentID: spec.ParentID,
	}
	if spec.DenyEveryone != 0 {
		data.PermissionOverwrites = []*discordgo.PermissionOverwrite{{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: spec.DenyEveryone,
		}}
	}

	channel, err := c.session.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Created channel",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channel.ID),
		zap.String("name", channel.Name))

	result := toChannel(channel)
	return &result, nil
}

// DeleteChannel deletes a channel
func (c *DiscordClient) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

// MoveChannel sets a channel's position
func (c *DiscordClient) MoveChannel(ctx context.Context, channelID string, position int) error {
	_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Position: &position}, discordgo.WithContext(ctx))
	return err
}

// ListRoles retrieves all roles of a guild
func (c *DiscordClient) ListRoles(ctx context.Context, guildID string) ([]Role, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	result := make([]Role, 0, len(roles))
	for _, r := range roles {
		result = append(result, Role{ID: r.ID, Name: r.Name, Color: r.Color})
	}
	return result, nil
}

// CreateRole creates a role with name and colour
func (c *DiscordClient) CreateRole(ctx context.Context, guildID, name string, color int) (*Role, error) {
	role, err := c.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:  name,
		Color: &color,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &Role{ID: role.ID, Name: role.Name, Color: role.Color}, nil
}

// EditRoleColor changes only a role's colour
func (c *DiscordClient) EditRoleColor(ctx context.Context, guildID, roleID string, color int) error {
	_, err := c.session.GuildRoleEdit(guildID, roleID, &discordgo.RoleParams{Color: &color}, discordgo.WithContext(ctx))
	return err
}

// DeleteRole deletes a role
func (c *DiscordClient) DeleteRole(ctx context.Context, guildID, roleID string) error {
	return c.session.GuildRoleDelete(guildID, roleID, discordgo.WithContext(ctx))
}

// StatusCode returns the HTTP status of a Discord REST error, or 0
func StatusCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

func toChannel(ch *discordgo.Channel) Channel {
	return Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		Name:     ch.Name,
		ParentID: ch.ParentID,
		Position: ch.Position,
		Kind:     toChannelKind(ch.Type),
	}
}

func toChannelKind(t discordgo.ChannelType) ChannelKind {
	switch t {
	case discordgo.ChannelTypeGuildVoice:
		return ChannelKindVoice
	case discordgo.ChannelTypeGuildCategory:
		return ChannelKindCategory
	default:
		return ChannelKindOther
	}
}

func fromChannelKind(k ChannelKind) discordgo.ChannelType {
	if k == ChannelKindCategory {
		return discordgo.ChannelTypeGuildCategory
	}
	return discordgo.ChannelTypeGuildVoice
}
