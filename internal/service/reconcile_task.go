package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// Reconciler reconciles one kind of resource for a tenant
type Reconciler interface {
	Name() string
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	ReconcileTenant(ctx context.Context, tenant *model.Tenant) (*model.ApplyReport, error)
}

// GuildNamer resolves guild names for log lines
type GuildNamer interface {
	GuildName(ctx context.Context, guildID string) string
}

// ReconcileTask drives a Reconciler from the scheduler and from manual
// triggers, taking the per-guild pass lock around every pass.
type ReconcileTask struct {
	reconciler Reconciler
	tenants    store.TenantStore
	lock       *PassLockService
	names      GuildNamer
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewReconcileTask creates a new reconcile task
func NewReconcileTask(
	reconciler Reconciler,
	tenants store.TenantStore,
	lock *PassLockService,
	names GuildNamer,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileTask {
	return &ReconcileTask{
		reconciler: reconciler,
		tenants:    tenants,
		lock:       lock,
		names:      names,
		interval:   interval,
		metrics:    m,
		logger:     logger,
	}
}

// Name returns the task name
func (t *ReconcileTask) Name() string {
	return t.reconciler.Name()
}

// Interval returns the scheduling interval
func (t *ReconcileTask) Interval() time.Duration {
	return t.interval
}

// Run reconciles every eligible tenant in turn. A failing tenant is logged
// and counted but never stops the loop; only listing tenants can fail Run.
func (t *ReconcileTask) Run(ctx context.Context) error {
	tenants, err := t.reconciler.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	failed := 0
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, err := t.runPass(ctx, tenant)
		switch {
		case err == nil:
		case apperrors.IsKind(err, apperrors.KindLockHeld):
			t.logger.Debug("Skipping guild with pass in progress",
				zap.String("task", t.Name()),
				zap.String("guild_id", tenant.GuildID))
		case apperrors.IsKind(err, apperrors.KindConfigMissing):
			t.logger.Debug("Skipping guild without setup",
				zap.String("task", t.Name()),
				zap.String("guild_id", tenant.GuildID),
				zap.Error(err))
		default:
			failed++
			t.logger.Error("Reconciliation pass failed",
				zap.String("task", t.Name()),
				zap.String("guild_id", tenant.GuildID),
				zap.String("guild_name", t.guildName(ctx, tenant.GuildID)),
				zap.String("kind", string(apperrors.KindOf(err))),
				zap.Error(err))
		}
	}

	t.logger.Debug("Reconciliation run completed",
		zap.String("task", t.Name()),
		zap.Int("tenants", len(tenants)),
		zap.Int("failed", failed))

	return nil
}

// RunGuild runs one pass for a single guild on demand
func (t *ReconcileTask) RunGuild(ctx context.Context, guildID string) (*model.ApplyReport, error) {
	tenant, err := t.tenants.GetTenant(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guild settings: %w", err)
	}
	return t.runPass(ctx, tenant)
}

func (t *ReconcileTask) runPass(ctx context.Context, tenant *model.Tenant) (*model.ApplyReport, error) {
	release, err := t.lock.Acquire(ctx, t.Name(), tenant.GuildID)
	if apperrors.IsKind(err, apperrors.KindLockHeld) {
		t.metrics.PassesTotal.WithLabelValues(t.Name(), "locked").Inc()
		return nil, err
	}
	if err != nil {
		t.metrics.PassesTotal.WithLabelValues(t.Name(), "failed").Inc()
		return nil, fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	defer release()

	start := time.Now()
	report, err := t.reconciler.ReconcileTenant(ctx, tenant)
	t.metrics.RecordPass(t.Name(), passResult(report, err), time.Since(start).Seconds())

	return report, err
}

func passResult(report *model.ApplyReport, err error) string {
	switch {
	case apperrors.IsKind(err, apperrors.KindConfigMissing):
		return "skipped"
	case err != nil:
		return "failed"
	case report != nil && report.HasFailures():
		return "partial"
	default:
		return "success"
	}
}

func (t *ReconcileTask) guildName(ctx context.Context, guildID string) string {
	if t.names == nil {
		return ""
	}
	return t.names.GuildName(ctx, guildID)
}
