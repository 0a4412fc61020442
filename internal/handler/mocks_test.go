package handler

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/z0w13/dmserv/internal/client"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/service"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) RunGuild(ctx context.Context, guildID string) (*model.ApplyReport, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApplyReport), args.Error(1)
}

type MockTaskRunner struct {
	mock.Mock
}

func (m *MockTaskRunner) RunNow(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) Snapshot(ctx context.Context) (*service.StatsSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StatsSnapshot), args.Error(1)
}

type MockGuilds struct {
	mock.Mock
}

func (m *MockGuilds) Overview(ctx context.Context, guildID string) (*service.GuildOverview, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GuildOverview), args.Error(1)
}

type MockSetup struct {
	mock.Mock
}

func (m *MockSetup) SetupPluralKit(ctx context.Context, guildID, userID, rawSystemID, token string) (*client.SystemInfo, error) {
	args := m.Called(ctx, guildID, userID, rawSystemID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.SystemInfo), args.Error(1)
}

func (m *MockSetup) SetupFronters(ctx context.Context, guildID, name string) (*client.Channel, bool, error) {
	args := m.Called(ctx, guildID, name)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*client.Channel), args.Bool(1), args.Error(2)
}
