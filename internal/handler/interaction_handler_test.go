package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/z0w13/dmserv/internal/client"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/service"
	"go.uber.org/zap"
)

type interactionFixture struct {
	fronters *MockReconciler
	roles    *MockReconciler
	setup    *MockSetup
	stats    *MockStats
	handler  *InteractionHandler
}

func newInteractionFixture() *interactionFixture {
	f := &interactionFixture{
		fronters: new(MockReconciler),
		roles:    new(MockReconciler),
		setup:    new(MockSetup),
		stats:    new(MockStats),
	}
	f.handler = NewInteractionHandler(f.fronters, f.roles, f.setup, f.stats, zap.NewNop())
	return f
}

func guildCommand(name string, options map[string]string) CommandInput {
	if options == nil {
		options = map[string]string{}
	}
	return CommandInput{Name: name, GuildID: testGuildID, UserID: "99", Options: options}
}

func TestExecute_UpdateFronters(t *testing.T) {
	f := newInteractionFixture()
	f.fronters.On("RunGuild", mock.Anything, testGuildID).
		Return(&model.ApplyReport{Created: 2, Deleted: 1, Updated: 1}, nil)

	reply := f.handler.Execute(context.Background(), guildCommand(CommandUpdateFronters, nil))

	assert.Equal(t, "fronter list updated, 2 created, 1 deleted, 1 updated", reply)
}

func TestExecute_UpdateMemberRoles(t *testing.T) {
	f := newInteractionFixture()
	report := &model.ApplyReport{Updated: 1}
	report.RecordFailure(model.OpCreate, "Sam (Alter)", "", errors.New("missing permissions"))
	f.roles.On("RunGuild", mock.Anything, testGuildID).Return(report, nil)

	reply := f.handler.Execute(context.Background(), guildCommand(CommandUpdateMemberRoles, nil))

	assert.Equal(t, "roles updated, 0 created, 0 deleted, 1 updated (1 failed)", reply)
}

func TestExecute_ReconcileErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config missing shows instructions",
			err:  apperrors.ConfigMissing(testGuildID, "PluralKit module not set up, please run /setup-pk"),
			want: "PluralKit module not set up, please run /setup-pk",
		},
		{
			name: "already running",
			err:  apperrors.LockHeld(testGuildID, service.TaskUpdateFronters),
			want: "an update is already running for this server, try again shortly",
		},
		{
			name: "other errors are generic",
			err:  apperrors.FetchFailed("get fronters", 500, errors.New("secret detail")),
			want: "error updating fronters, please try again later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newInteractionFixture()
			f.fronters.On("RunGuild", mock.Anything, testGuildID).Return(nil, tt.err)

			reply := f.handler.Execute(context.Background(), guildCommand(CommandUpdateFronters, nil))

			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestExecute_RequiresGuild(t *testing.T) {
	f := newInteractionFixture()

	reply := f.handler.Execute(context.Background(), CommandInput{Name: CommandUpdateFronters})

	assert.Equal(t, "this command can only be used in a server", reply)
	f.fronters.AssertNotCalled(t, "RunGuild", mock.Anything, mock.Anything)
}

func TestExecute_RolesDisabled(t *testing.T) {
	f := newInteractionFixture()
	h := NewInteractionHandler(f.fronters, nil, f.setup, f.stats, zap.NewNop())

	assert.Equal(t, "member roles are disabled", h.Execute(context.Background(), guildCommand(CommandUpdateMemberRoles, nil)))
	for _, cmd := range h.Commands() {
		assert.NotEqual(t, CommandUpdateMemberRoles, cmd.Name)
	}
}

func TestExecute_SetupPK(t *testing.T) {
	name := "The Example System"

	t.Run("named system", func(t *testing.T) {
		f := newInteractionFixture()
		f.setup.On("SetupPluralKit", mock.Anything, testGuildID, "99", "ExM-pl", "tok").
			Return(&client.SystemInfo{ID: "exmpl", Name: &name}, nil)

		reply := f.handler.Execute(context.Background(),
			guildCommand(CommandSetupPK, map[string]string{"system_id": "ExM-pl", "token": "tok"}))

		assert.Equal(t, "PluralKit module setup with system: The Example System (`exmpl`)", reply)
	})

	t.Run("unnamed system", func(t *testing.T) {
		f := newInteractionFixture()
		f.setup.On("SetupPluralKit", mock.Anything, testGuildID, "99", "exmpl", "").
			Return(&client.SystemInfo{ID: "exmpl"}, nil)

		reply := f.handler.Execute(context.Background(),
			guildCommand(CommandSetupPK, map[string]string{"system_id": "exmpl"}))

		assert.Equal(t, "PluralKit module setup with system: `exmpl`", reply)
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newInteractionFixture()
		f.setup.On("SetupPluralKit", mock.Anything, testGuildID, "99", "abc123", "").
			Return(nil, fmt.Errorf("%w, abc123", service.ErrInvalidSystemID))

		reply := f.handler.Execute(context.Background(),
			guildCommand(CommandSetupPK, map[string]string{"system_id": "abc123"}))

		assert.Contains(t, reply, "error: invalid system id")
	})

	t.Run("verification failure", func(t *testing.T) {
		f := newInteractionFixture()
		f.setup.On("SetupPluralKit", mock.Anything, testGuildID, "99", "exmpl", "").
			Return(nil, apperrors.FetchFailed("get system", 404, errors.New("system not found")))

		reply := f.handler.Execute(context.Background(),
			guildCommand(CommandSetupPK, map[string]string{"system_id": "exmpl"}))

		assert.Contains(t, reply, "PluralKit API is having issues or system doesn't exist")
	})
}

func TestExecute_SetupFronters(t *testing.T) {
	f := newInteractionFixture()
	f.setup.On("SetupFronters", mock.Anything, testGuildID, "").
		Return(&client.Channel{ID: "5", Name: service.DefaultFronterCategory}, true, nil).Once()
	f.setup.On("SetupFronters", mock.Anything, testGuildID, "Fronting").
		Return(&client.Channel{ID: "6", Name: "fronting"}, false, nil).Once()

	created := f.handler.Execute(context.Background(), guildCommand(CommandSetupFronters, nil))
	existing := f.handler.Execute(context.Background(),
		guildCommand(CommandSetupFronters, map[string]string{"name": "Fronting"}))

	assert.Equal(t, "created fronter category **Current Fronters**", created)
	assert.Equal(t, "fronter category set to **fronting**", existing)
}

func TestExecute_Stats(t *testing.T) {
	f := newInteractionFixture()
	f.stats.On("Snapshot", mock.Anything).Return(&service.StatsSnapshot{
		Version:         "1.0.0",
		Uptime:          "2h 3m",
		Guilds:          1234,
		TotalShards:     2,
		ConnectedShards: 1,
		CPUPercent:      12.5,
		MemoryBytes:     64 * 1024 * 1024,
		FronterSystems:  12,
	}, nil)

	reply := f.handler.Execute(context.Background(), CommandInput{Name: CommandStats})

	assert.Contains(t, reply, "**Version:** 1.0.0")
	assert.Contains(t, reply, "**Servers:** 1,234")
	assert.Contains(t, reply, "**Shards:** 1/2 connected")
	assert.Contains(t, reply, "**CPU:** 12.5%")
	assert.Contains(t, reply, "**Memory:** 64.0 MiB")
	assert.Contains(t, reply, "**Systems tracked:** 12")
}

func TestExecute_Shards(t *testing.T) {
	f := newInteractionFixture()
	f.stats.On("Snapshot", mock.Anything).Return(&service.StatsSnapshot{
		Shards: []model.ShardStats{
			{ShardID: 0, Connected: true, ReadyAt: time.Now().Add(-time.Hour), Restarts: 1},
			{ShardID: 1, Restarts: 3},
		},
	}, nil)

	reply := f.handler.Execute(context.Background(),
		CommandInput{Name: CommandShards, ShardID: 0, Latency: 42 * time.Millisecond})

	assert.Contains(t, reply, "**Shard #0:** up")
	assert.Contains(t, reply, "1 restarts, 42 ms")
	assert.Contains(t, reply, "**Shard #1:** disconnected, 3 restarts")
}

func TestCommands(t *testing.T) {
	f := newInteractionFixture()

	names := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range f.handler.Commands() {
		names[cmd.Name] = cmd
	}

	for _, name := range []string{
		CommandUpdateFronters, CommandUpdateMemberRoles, CommandSetupPK,
		CommandSetupFronters, CommandStats, CommandShards,
	} {
		assert.Contains(t, names, name)
	}

	setupPK := names[CommandSetupPK]
	require.Len(t, setupPK.Options, 2)
	assert.True(t, setupPK.Options[0].Required)
	assert.False(t, setupPK.Options[1].Required)
	require.NotNil(t, names[CommandUpdateFronters].DefaultMemberPermissions)
}

func TestToCommandInput(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: testGuildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "99"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: CommandSetupPK,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "system_id", Type: discordgo.ApplicationCommandOptionString, Value: "exmpl"},
			},
		},
	}}

	in := ToCommandInput(i)

	assert.Equal(t, CommandSetupPK, in.Name)
	assert.Equal(t, testGuildID, in.GuildID)
	assert.Equal(t, "99", in.UserID)
	assert.Equal(t, map[string]string{"system_id": "exmpl"}, in.Options)
}
