package service

import (
	"context"

	"github.com/z0w13/dmserv/internal/algorithm"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// TaskUpdateMemberRoles is the name of the member role reconciliation task
const TaskUpdateMemberRoles = "update-member-roles"

// RoleService keeps one coloured role per system member
type RoleService struct {
	tenants store.TenantStore
	fetcher *DesiredStateFetcher
	reader  *ObservedStateReader
	apply   *ApplyService
	logger  *zap.Logger
}

// NewRoleService creates a new role service
func NewRoleService(
	tenants store.TenantStore,
	fetcher *DesiredStateFetcher,
	reader *ObservedStateReader,
	apply *ApplyService,
	logger *zap.Logger,
) *RoleService {
	return &RoleService{
		tenants: tenants,
		fetcher: fetcher,
		reader:  reader,
		apply:   apply,
		logger:  logger,
	}
}

// Name returns the task name
func (s *RoleService) Name() string {
	return TaskUpdateMemberRoles
}

// ListTenants returns guilds with PluralKit setup
func (s *RoleService) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return s.tenants.ListMembershipTenants(ctx)
}

// ReconcileTenant runs one member role pass for a guild
func (s *RoleService) ReconcileTenant(ctx context.Context, tenant *model.Tenant) (*model.ApplyReport, error) {
	if !tenant.HasMembership() {
		return nil, apperrors.ConfigMissing(tenant.GuildID,
			"PluralKit module not set up, please run /setup-pk")
	}

	desired, err := s.fetcher.FetchRoles(ctx, tenant)
	if err != nil {
		return nil, err
	}

	observed, err := s.reader.ReadMemberRoles(ctx, tenant)
	if err != nil {
		return nil, err
	}

	ops := withExtraDeletes(
		algorithm.Diff(observed.Entities, desired.Map(), algorithm.RoleColorChanged),
		observed.Extras,
	)
	report := s.apply.ApplyRoles(ctx, tenant, ops)

	s.logger.Info("Member roles updated",
		zap.String("guild_id", tenant.GuildID),
		zap.Int("created", report.Created),
		zap.Int("deleted", report.Deleted),
		zap.Int("updated", report.Updated),
		zap.Int("failed", len(report.Failures)))

	return report, nil
}
