package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// stubReconciler records the guilds it reconciles and fails for chosen ones
type stubReconciler struct {
	tenants []*model.Tenant
	errs    map[string]error
	seen    []string
	block   chan struct{}
	started chan struct{}
}

func (r *stubReconciler) Name() string { return "stub" }

func (r *stubReconciler) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return r.tenants, nil
}

func (r *stubReconciler) ReconcileTenant(ctx context.Context, tenant *model.Tenant) (*model.ApplyReport, error) {
	r.seen = append(r.seen, tenant.GuildID)
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		<-r.block
	}
	if err := r.errs[tenant.GuildID]; err != nil {
		return nil, err
	}
	return &model.ApplyReport{Created: 1}, nil
}

// unreachableLeaseStore fails every call, like a Redis that is down
type unreachableLeaseStore struct{}

func (unreachableLeaseStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (unreachableLeaseStore) Release(ctx context.Context, key, token string) error { return nil }

func (unreachableLeaseStore) Ping(ctx context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func (unreachableLeaseStore) Close() error { return nil }

func newTestReconcileTask(r Reconciler, tenants *MockTenantStore, leases store.LeaseStore) *ReconcileTask {
	logger := zap.NewNop()
	lock := NewPassLockService(leases, time.Minute, logger)
	return NewReconcileTask(r, tenants, lock, nil, time.Minute, newTestMetrics(), logger)
}

func TestReconcileTask_FailuresDoNotStopLoop(t *testing.T) {
	r := &stubReconciler{
		tenants: []*model.Tenant{{GuildID: "1"}, {GuildID: "2"}, {GuildID: "3"}, {GuildID: "4"}},
		errs: map[string]error{
			"1": apperrors.FetchFailed("get fronters", 502, errors.New("bad gateway")),
			"2": apperrors.ConfigMissing("2", "please run /setup-pk"),
			"3": apperrors.PositionOverflow(70000, 65535),
		},
	}
	task := newTestReconcileTask(r, new(MockTenantStore), store.NewMemoryLeaseStore())

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, []string{"1", "2", "3", "4"}, r.seen)

	assert.Equal(t, 2.0, testutil.ToFloat64(task.metrics.PassesTotal.WithLabelValues("stub", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(task.metrics.PassesTotal.WithLabelValues("stub", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(task.metrics.PassesTotal.WithLabelValues("stub", "success")))
}

func TestReconcileTask_RunGuild(t *testing.T) {
	r := &stubReconciler{}
	tenants := new(MockTenantStore)
	tenants.On("GetTenant", mock.Anything, "7").Return(&model.Tenant{GuildID: "7"}, nil)
	task := newTestReconcileTask(r, tenants, store.NewMemoryLeaseStore())

	report, err := task.RunGuild(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, []string{"7"}, r.seen)
}

func TestReconcileTask_LockExclusion(t *testing.T) {
	r := &stubReconciler{
		tenants: []*model.Tenant{{GuildID: "7"}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	tenants := new(MockTenantStore)
	tenants.On("GetTenant", mock.Anything, "7").Return(&model.Tenant{GuildID: "7"}, nil)
	task := newTestReconcileTask(r, tenants, store.NewMemoryLeaseStore())

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()
	<-r.started

	// A manual pass while the scheduled pass holds the lock is refused
	_, err := task.RunGuild(context.Background(), "7")
	assert.True(t, apperrors.IsKind(err, apperrors.KindLockHeld))

	close(r.block)
	require.NoError(t, <-done)

	// Lock is released after the pass
	r.started, r.block = nil, nil
	_, err = task.RunGuild(context.Background(), "7")
	assert.NoError(t, err)
}

func TestReconcileTask_GetTenantError(t *testing.T) {
	tenants := new(MockTenantStore)
	tenants.On("GetTenant", mock.Anything, "7").Return(nil, errors.New("db down"))
	task := newTestReconcileTask(&stubReconciler{}, tenants, store.NewMemoryLeaseStore())

	_, err := task.RunGuild(context.Background(), "7")
	assert.Error(t, err)
}

func TestReconcileTask_LeaseStoreErrorCountsAsFailed(t *testing.T) {
	r := &stubReconciler{tenants: []*model.Tenant{{GuildID: "1"}}}
	task := newTestReconcileTask(r, new(MockTenantStore), unreachableLeaseStore{})

	require.NoError(t, task.Run(context.Background()))
	assert.Empty(t, r.seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(task.metrics.PassesTotal.WithLabelValues("stub", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(task.metrics.PassesTotal.WithLabelValues("stub", "locked")))
}

func TestPassLockService_KeysByTaskAndGuild(t *testing.T) {
	lock := NewPassLockService(store.NewMemoryLeaseStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	release, err := lock.Acquire(ctx, TaskUpdateFronters, "1")
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, TaskUpdateFronters, "1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindLockHeld))

	other, err := lock.Acquire(ctx, TaskUpdateMemberRoles, "1")
	require.NoError(t, err)
	other()

	release()
	again, err := lock.Acquire(ctx, TaskUpdateFronters, "1")
	require.NoError(t, err)
	again()
}
