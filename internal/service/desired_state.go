package service

import (
	"context"
	"errors"
	"strings"

	"github.com/z0w13/dmserv/internal/client"
	"github.com/z0w13/dmserv/internal/config"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

// RoleSuffix marks roles managed by the member role reconciler
const RoleSuffix = " (Alter)"

// DesiredStateFetcher builds desired sets from PluralKit
type DesiredStateFetcher struct {
	pluralkit  client.MembershipClient
	roleSource string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewDesiredStateFetcher creates a new desired state fetcher.
// roleSource selects whether roles follow current fronters or the whole roster.
func NewDesiredStateFetcher(
	pluralkit client.MembershipClient,
	roleSource string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DesiredStateFetcher {
	if roleSource == "" {
		roleSource = config.RoleSourceFronters
	}
	return &DesiredStateFetcher{
		pluralkit:  pluralkit,
		roleSource: roleSource,
		metrics:    m,
		logger:     logger,
	}
}

// FetchFronters returns the current fronters' names in fetch order
func (f *DesiredStateFetcher) FetchFronters(ctx context.Context, tenant *model.Tenant) (model.DesiredSet[model.NoAttributes], error) {
	members, err := f.pluralkit.GetFronters(ctx, tenant.SystemID, tenant.Token)
	if err != nil {
		f.recordFetchError(err)
		return model.DesiredSet[model.NoAttributes]{}, apperrors.WithGuild(err, tenant.GuildID)
	}

	set := model.NewDesiredSet[model.NoAttributes]()
	for _, member := range members {
		set.Add(model.DesiredEntity[model.NoAttributes]{Name: member.EffectiveName()})
	}
	return set, nil
}

// FetchRoles returns one role per member of the configured role source
func (f *DesiredStateFetcher) FetchRoles(ctx context.Context, tenant *model.Tenant) (model.DesiredSet[model.RoleAttributes], error) {
	var (
		members []client.Member
		err     error
	)
	if f.roleSource == config.RoleSourceMembers {
		members, err = f.pluralkit.GetMembers(ctx, tenant.SystemID, tenant.Token)
	} else {
		members, err = f.pluralkit.GetFronters(ctx, tenant.SystemID, tenant.Token)
	}
	if err != nil {
		f.recordFetchError(err)
		return model.DesiredSet[model.RoleAttributes]{}, apperrors.WithGuild(err, tenant.GuildID)
	}

	set := model.NewDesiredSet[model.RoleAttributes]()
	for _, member := range members {
		color := ""
		if member.Color != nil {
			color = *member.Color
		}
		set.Add(model.DesiredEntity[model.RoleAttributes]{
			Name:       RoleName(member.EffectiveName()),
			Attributes: model.RoleAttributes{Color: util.HexToColor(color)},
		})
	}
	return set, nil
}

// RoleName derives a role name from a member name, dropping parenthesised
// pronouns such as " (she/her)".
func RoleName(memberName string) string {
	return strings.Split(memberName, " (")[0] + RoleSuffix
}

func (f *DesiredStateFetcher) recordFetchError(err error) {
	detail := "unknown"
	var rerr *apperrors.ReconcileError
	if errors.As(err, &rerr) && rerr.Detail != "" {
		detail = string(rerr.Detail)
	}
	f.metrics.RecordFetchError("pluralkit", detail)
}
