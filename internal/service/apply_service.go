package service

import (
	"context"

	"github.com/z0w13/dmserv/internal/algorithm"
	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"go.uber.org/zap"
)

// ApplyService executes change operations against Discord.
//
// Operations run deletes first, then creates, then updates. Each operation is
// attempted on its own; a failure is recorded in the report and the rest of
// the pass continues.
type ApplyService struct {
	discord client.ResourceClient
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewApplyService creates a new apply service
func NewApplyService(discord client.ResourceClient, m *metrics.Metrics, logger *zap.Logger) *ApplyService {
	return &ApplyService{
		discord: discord,
		metrics: m,
		logger:  logger,
	}
}

// ApplyChannels applies fronter channel operations and then moves every
// surviving or created channel whose position differs from its assignment.
// Created channels are tracked at the position the API reports, since a
// requested position of 0 is not sent.
func (s *ApplyService) ApplyChannels(
	ctx context.Context,
	tenant *model.Tenant,
	observed model.ObservedSet[model.NoAttributes],
	ops []model.ChangeOperation[model.NoAttributes],
	positions algorithm.Positions,
) *model.ApplyReport {
	report := &model.ApplyReport{}
	deletes, creates, _ := algorithm.Partition(ops)

	current := make(map[string]int, len(observed.Entities))
	ids := make(map[string]string, len(observed.Entities))
	for name, entity := range observed.Entities {
		current[name] = entity.Position
		ids[name] = entity.RemoteID
	}

	for _, op := range deletes {
		err := s.discord.DeleteChannel(ctx, op.RemoteID)
		s.record(report, tenant, "channel", op.Kind, op.Name, op.RemoteID, err)
		// Only the matched channel counts as current; a removed duplicate never did
		if err == nil && ids[op.Name] == op.RemoteID {
			delete(current, op.Name)
			delete(ids, op.Name)
		}
	}

	for _, op := range creates {
		position := positions[op.Name]
		ch, err := s.discord.CreateChannel(ctx, tenant.GuildID, client.ChannelSpec{
			Name:         op.Name,
			Kind:         client.ChannelKindVoice,
			ParentID:     tenant.CategoryID,
			Position:     position,
			DenyEveryone: client.PermissionConnect,
		})
		if err != nil {
			s.record(report, tenant, "channel", op.Kind, op.Name, "", err)
			continue
		}
		s.record(report, tenant, "channel", op.Kind, op.Name, ch.ID, nil)
		current[op.Name] = ch.Position
		ids[op.Name] = ch.ID
	}

	for _, name := range algorithm.Repositions(current, positions) {
		position := positions[name]
		err := s.discord.MoveChannel(ctx, ids[name], position)
		s.record(report, tenant, "channel", model.OpUpdate, name, ids[name], err)
	}

	return report
}

// ApplyRoles applies member role operations; updates change colour only
func (s *ApplyService) ApplyRoles(
	ctx context.Context,
	tenant *model.Tenant,
	ops []model.ChangeOperation[model.RoleAttributes],
) *model.ApplyReport {
	report := &model.ApplyReport{}
	deletes, creates, updates := algorithm.Partition(ops)

	for _, op := range deletes {
		err := s.discord.DeleteRole(ctx, tenant.GuildID, op.RemoteID)
		s.record(report, tenant, "role", op.Kind, op.Name, op.RemoteID, err)
	}

	for _, op := range creates {
		role, err := s.discord.CreateRole(ctx, tenant.GuildID, op.Name, op.Attributes.Color)
		remoteID := ""
		if role != nil {
			remoteID = role.ID
		}
		s.record(report, tenant, "role", op.Kind, op.Name, remoteID, err)
	}

	for _, op := range updates {
		err := s.discord.EditRoleColor(ctx, tenant.GuildID, op.RemoteID, op.Attributes.Color)
		s.record(report, tenant, "role", op.Kind, op.Name, op.RemoteID, err)
	}

	return report
}

func (s *ApplyService) record(
	report *model.ApplyReport,
	tenant *model.Tenant,
	resource string,
	kind model.OpKind,
	name, remoteID string,
	err error,
) {
	if err != nil {
		opErr := apperrors.ApplyFailed(tenant.GuildID, resource+" "+string(kind), err)
		report.RecordFailure(kind, name, remoteID, opErr)
		s.metrics.RecordOperation(resource, string(kind), "failed")
		s.logger.Warn("Operation failed",
			zap.String("guild_id", tenant.GuildID),
			zap.String("resource", resource),
			zap.String("op", string(kind)),
			zap.String("name", name),
			zap.String("remote_id", remoteID),
			zap.Int("status", client.StatusCode(err)),
			zap.Error(err))
		return
	}

	report.RecordSuccess(kind)
	s.metrics.RecordOperation(resource, string(kind), "success")
	s.logger.Debug("Operation applied",
		zap.String("guild_id", tenant.GuildID),
		zap.String("resource", resource),
		zap.String("op", string(kind)),
		zap.String("name", name),
		zap.String("remote_id", remoteID))
}
