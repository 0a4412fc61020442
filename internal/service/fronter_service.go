package service

import (
	"context"

	"github.com/z0w13/dmserv/internal/algorithm"
	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// TaskUpdateFronters is the name of the fronter channel reconciliation task
const TaskUpdateFronters = "update-fronters"

// FronterService keeps one voice channel per current fronter under a
// guild's fronter category.
type FronterService struct {
	tenants store.TenantStore
	fetcher *DesiredStateFetcher
	reader  *ObservedStateReader
	apply   *ApplyService
	discord client.ResourceClient
	logger  *zap.Logger
}

// NewFronterService creates a new fronter service
func NewFronterService(
	tenants store.TenantStore,
	fetcher *DesiredStateFetcher,
	reader *ObservedStateReader,
	apply *ApplyService,
	discord client.ResourceClient,
	logger *zap.Logger,
) *FronterService {
	return &FronterService{
		tenants: tenants,
		fetcher: fetcher,
		reader:  reader,
		apply:   apply,
		discord: discord,
		logger:  logger,
	}
}

// Name returns the task name
func (s *FronterService) Name() string {
	return TaskUpdateFronters
}

// ListTenants returns guilds with both a fronter category and a system
func (s *FronterService) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	all, err := s.tenants.ListFronterTenants(ctx)
	if err != nil {
		return nil, err
	}

	tenants := make([]*model.Tenant, 0, len(all))
	for _, tenant := range all {
		if !tenant.HasMembership() {
			s.logger.Debug("Skipping guild without PluralKit setup",
				zap.String("guild_id", tenant.GuildID),
				zap.String("task", TaskUpdateFronters))
			continue
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

// ReconcileTenant runs one fronter channel pass for a guild
func (s *FronterService) ReconcileTenant(ctx context.Context, tenant *model.Tenant) (*model.ApplyReport, error) {
	if !tenant.HasFronterCategory() {
		return nil, apperrors.ConfigMissing(tenant.GuildID,
			"fronter channels not set up, please run /setup-fronters")
	}
	if !tenant.HasMembership() {
		return nil, apperrors.ConfigMissing(tenant.GuildID,
			"PluralKit module not set up, please run /setup-pk")
	}

	category, err := s.discord.GetChannel(ctx, tenant.CategoryID)
	if err != nil {
		return nil, apperrors.WithGuild(
			apperrors.FetchFailed("get fronter category", client.StatusCode(err), err), tenant.GuildID)
	}
	if category.Kind != client.ChannelKindCategory {
		return nil, apperrors.ConfigMissing(tenant.GuildID,
			"configured fronter category is not a category, please run /setup-fronters")
	}

	desired, err := s.fetcher.FetchFronters(ctx, tenant)
	if err != nil {
		return nil, err
	}

	positions, err := algorithm.AssignPositions(desired.Names())
	if err != nil {
		return nil, apperrors.WithGuild(err, tenant.GuildID)
	}

	observed, err := s.reader.ReadFronterChannels(ctx, tenant)
	if err != nil {
		return nil, err
	}

	ops := withExtraDeletes(algorithm.Diff(observed.Entities, desired.Map(), nil), observed.Extras)
	report := s.apply.ApplyChannels(ctx, tenant, observed, ops, positions)

	s.logger.Info("Fronters updated",
		zap.String("guild_id", tenant.GuildID),
		zap.Int("created", report.Created),
		zap.Int("deleted", report.Deleted),
		zap.Int("updated", report.Updated),
		zap.Int("failed", len(report.Failures)))

	return report, nil
}

// withExtraDeletes prepends deletes for duplicate observed entities
func withExtraDeletes[A any](ops []model.ChangeOperation[A], extras []model.ObservedEntity[A]) []model.ChangeOperation[A] {
	if len(extras) == 0 {
		return ops
	}
	out := make([]model.ChangeOperation[A], 0, len(extras)+len(ops))
	for _, extra := range extras {
		out = append(out, model.ChangeOperation[A]{
			Kind:       model.OpDelete,
			RemoteID:   extra.RemoteID,
			Name:       extra.Name,
			Attributes: extra.Attributes,
		})
	}
	return append(out, ops...)
}
