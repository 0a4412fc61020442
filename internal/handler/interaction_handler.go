package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/service"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

// Slash command names
const (
	CommandUpdateFronters    = "update-fronters"
	CommandUpdateMemberRoles = "update-member-roles"
	CommandSetupPK           = "setup-pk"
	CommandSetupFronters     = "setup-fronters"
	CommandStats             = "stats"
	CommandShards            = "shards"
)

// Setup persists guild settings for the setup commands
type Setup interface {
	SetupPluralKit(ctx context.Context, guildID, userID, rawSystemID, token string) (*client.SystemInfo, error)
	SetupFronters(ctx context.Context, guildID, name string) (*client.Channel, bool, error)
}

// CommandInput is the part of an interaction a command needs
type CommandInput struct {
	Name    string
	GuildID string
	UserID  string
	Options map[string]string
	// Latency is the heartbeat latency of the shard that received the command
	Latency time.Duration
	ShardID int
}

// InteractionHandler executes slash commands
type InteractionHandler struct {
	fronters GuildReconciler
	roles    GuildReconciler
	setup    Setup
	stats    StatsProvider
	logger   *zap.Logger
}

// NewInteractionHandler creates a new interaction handler. roles may be nil
// when member role reconciliation is disabled.
func NewInteractionHandler(
	fronters GuildReconciler,
	roles GuildReconciler,
	setup Setup,
	stats StatsProvider,
	logger *zap.Logger,
) *InteractionHandler {
	return &InteractionHandler{
		fronters: fronters,
		roles:    roles,
		setup:    setup,
		stats:    stats,
		logger:   logger,
	}
}

// Commands returns the application command definitions to register
func (h *InteractionHandler) Commands() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	noDM := false

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:                     CommandUpdateFronters,
			Description:              "Update fronter channels",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
		},
		{
			Name:                     CommandSetupPK,
			Description:              "Set up the PluralKit module",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "system_id",
					Description: "PluralKit system id",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "token",
					Description: "PluralKit token, needed for private systems",
				},
			},
		},
		{
			Name:                     CommandSetupFronters,
			Description:              "Set up the fronter channel category",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Category name, defaults to \"" + service.DefaultFronterCategory + "\"",
				},
			},
		},
		{
			Name:        CommandStats,
			Description: "Show bot statistics",
		},
		{
			Name:        CommandShards,
			Description: "Show shard status",
		},
	}

	if h.roles != nil {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:                     CommandUpdateMemberRoles,
			Description:              "Update member roles",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
		})
	}

	return cmds
}

// HandleInteraction is registered as a discordgo event handler
func (h *InteractionHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	in := ToCommandInput(i)
	in.Latency = s.HeartbeatLatency()
	in.ShardID = s.ShardID

	var flags discordgo.MessageFlags
	if in.Name != CommandStats && in.Name != CommandShards {
		flags = discordgo.MessageFlagsEphemeral
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		h.logger.Error("failed to defer interaction",
			zap.String("command", in.Name),
			zap.String("guild_id", in.GuildID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	content := h.Execute(ctx, in)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		h.logger.Error("failed to send interaction response",
			zap.String("command", in.Name),
			zap.String("guild_id", in.GuildID),
			zap.Error(err))
	}
}

// ToCommandInput extracts the command name, guild, user and string options
func ToCommandInput(i *discordgo.InteractionCreate) CommandInput {
	data := i.ApplicationCommandData()
	in := CommandInput{
		Name:    data.Name,
		GuildID: i.GuildID,
		Options: make(map[string]string, len(data.Options)),
	}
	if i.Member != nil && i.Member.User != nil {
		in.UserID = i.Member.User.ID
	} else if i.User != nil {
		in.UserID = i.User.ID
	}
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			in.Options[opt.Name] = opt.StringValue()
		}
	}
	return in
}

// Execute runs a command and returns the reply text
func (h *InteractionHandler) Execute(ctx context.Context, in CommandInput) string {
	logger := h.logger.With(zap.String("command", in.Name), zap.String("guild_id", in.GuildID))

	switch in.Name {
	case CommandStats:
		return h.statsReply(ctx, logger)
	case CommandShards:
		return h.shardsReply(ctx, logger, in)
	}

	if in.GuildID == "" {
		return "this command can only be used in a server"
	}

	switch in.Name {
	case CommandUpdateFronters:
		return h.reconcileReply(ctx, logger, h.fronters, in.GuildID, "fronter list updated", "error updating fronters")
	case CommandUpdateMemberRoles:
		if h.roles == nil {
			return "member roles are disabled"
		}
		return h.reconcileReply(ctx, logger, h.roles, in.GuildID, "roles updated", "error updating roles")
	case CommandSetupPK:
		return h.setupPKReply(ctx, logger, in)
	case CommandSetupFronters:
		return h.setupFrontersReply(ctx, logger, in)
	default:
		return "unknown command"
	}
}

func (h *InteractionHandler) reconcileReply(
	ctx context.Context,
	logger *zap.Logger,
	reconciler GuildReconciler,
	guildID string,
	success string,
	failure string,
) string {
	report, err := reconciler.RunGuild(ctx, guildID)
	if err != nil {
		var rerr *apperrors.ReconcileError
		switch {
		case apperrors.IsKind(err, apperrors.KindConfigMissing) && errors.As(err, &rerr):
			return rerr.Message
		case apperrors.IsKind(err, apperrors.KindLockHeld):
			return "an update is already running for this server, try again shortly"
		default:
			logger.Error("command failed", zap.Error(err))
			return failure + ", please try again later"
		}
	}

	reply := success + ", " + report.Summary()
	if report.HasFailures() {
		reply += fmt.Sprintf(" (%d failed)", len(report.Failures))
	}
	return reply
}

func (h *InteractionHandler) setupPKReply(ctx context.Context, logger *zap.Logger, in CommandInput) string {
	systemID := in.Options["system_id"]
	info, err := h.setup.SetupPluralKit(ctx, in.GuildID, in.UserID, systemID, in.Options["token"])
	switch {
	case errors.Is(err, service.ErrInvalidSystemID):
		return "error: " + err.Error()
	case apperrors.IsKind(err, apperrors.KindFetch):
		logger.Warn("system verification failed", zap.String("system_id", systemID), zap.Error(err))
		return fmt.Sprintf("settings saved, but PluralKit API is having issues or system doesn't exist: %v", err)
	case err != nil:
		logger.Error("failed to save PluralKit settings", zap.Error(err))
		return "error saving settings, please try again later"
	}

	if info.Name != nil && *info.Name != "" {
		return fmt.Sprintf("PluralKit module setup with system: %s (`%s`)", *info.Name, info.ID)
	}
	return fmt.Sprintf("PluralKit module setup with system: `%s`", info.ID)
}

func (h *InteractionHandler) setupFrontersReply(ctx context.Context, logger *zap.Logger, in CommandInput) string {
	category, created, err := h.setup.SetupFronters(ctx, in.GuildID, in.Options["name"])
	if err != nil {
		logger.Error("failed to set up fronter category", zap.Error(err))
		return "error setting up fronter category, please try again later"
	}
	if created {
		return fmt.Sprintf("created fronter category **%s**", category.Name)
	}
	return fmt.Sprintf("fronter category set to **%s**", category.Name)
}

func (h *InteractionHandler) statsReply(ctx context.Context, logger *zap.Logger) string {
	snapshot, err := h.stats.Snapshot(ctx)
	if err != nil {
		logger.Error("failed to collect stats", zap.Error(err))
		return "error collecting stats, please try again later"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Version:** %s\n", snapshot.Version)
	fmt.Fprintf(&b, "**Uptime:** %s\n", snapshot.Uptime)
	fmt.Fprintf(&b, "**Servers:** %s\n", util.FormatThousands(int64(snapshot.Guilds)))
	fmt.Fprintf(&b, "**Shards:** %d/%d connected\n", snapshot.ConnectedShards, snapshot.TotalShards)
	fmt.Fprintf(&b, "**CPU:** %.1f%%\n", snapshot.CPUPercent)
	fmt.Fprintf(&b, "**Memory:** %.1f MiB\n", float64(snapshot.MemoryBytes)/(1024*1024))
	fmt.Fprintf(&b, "**Systems tracked:** %s", util.FormatThousands(int64(snapshot.FronterSystems)))
	return b.String()
}

func (h *InteractionHandler) shardsReply(ctx context.Context, logger *zap.Logger, in CommandInput) string {
	snapshot, err := h.stats.Snapshot(ctx)
	if err != nil {
		logger.Error("failed to collect stats", zap.Error(err))
		return "error collecting stats, please try again later"
	}
	if len(snapshot.Shards) == 0 {
		return "no shards connected"
	}

	now := time.Now()
	lines := make([]string, 0, len(snapshot.Shards))
	for _, shard := range snapshot.Shards {
		lines = append(lines, formatShard(shard, in, now))
	}
	return strings.Join(lines, "\n")
}

func formatShard(shard model.ShardStats, in CommandInput, now time.Time) string {
	status := "disconnected"
	if shard.Connected {
		status = "up " + util.FormatSignificantDuration(now.Sub(shard.ReadyAt))
	}
	line := fmt.Sprintf("**Shard #%d:** %s, %d restarts", shard.ShardID, status, shard.Restarts)
	if shard.ShardID == in.ShardID && in.Latency > 0 {
		line += fmt.Sprintf(", %d ms", in.Latency.Milliseconds())
	}
	return line
}
