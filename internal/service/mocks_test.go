package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/z0w13/dmserv/internal/client"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"go.uber.org/zap"
)

// MockTenantStore is a mock implementation of TenantStore
type MockTenantStore struct {
	mock.Mock
}

func (m *MockTenantStore) GetTenant(ctx context.Context, guildID string) (*model.Tenant, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockTenantStore) ListFronterTenants(ctx context.Context) ([]*model.Tenant, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.Tenant), args.Error(1)
}

func (m *MockTenantStore) ListMembershipTenants(ctx context.Context) ([]*model.Tenant, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.Tenant), args.Error(1)
}

func (m *MockTenantStore) SaveGuildSettings(ctx context.Context, settings *model.GuildSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockTenantStore) SaveFronterCategory(ctx context.Context, category *model.FronterCategory) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *MockTenantStore) CountFronterSystems(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockTenantStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTenantStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTenantStore) Close() {}

// MockMembershipClient is a mock implementation of MembershipClient
type MockMembershipClient struct {
	mock.Mock
}

func (m *MockMembershipClient) GetFronters(ctx context.Context, systemID, token string) ([]client.Member, error) {
	args := m.Called(ctx, systemID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.Member), args.Error(1)
}

func (m *MockMembershipClient) GetMembers(ctx context.Context, systemID, token string) ([]client.Member, error) {
	args := m.Called(ctx, systemID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.Member), args.Error(1)
}

func (m *MockMembershipClient) GetSystem(ctx context.Context, systemID, token string) (*client.SystemInfo, error) {
	args := m.Called(ctx, systemID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.SystemInfo), args.Error(1)
}

// fakeDiscord is an in-memory guild with injectable per-call failures
type fakeDiscord struct {
	mu       sync.Mutex
	nextID   int
	guilds   map[string]string
	channels map[string]*client.Channel
	roles    map[string]map[string]*client.Role

	// failures maps "<method>:<name>" to the error that call returns
	failures map[string]error
	calls    []string

	// createdAt, when set, is where new channels land whatever position was requested
	createdAt *int
}

var errInjected = errors.New("injected failure")

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		nextID:   1000,
		guilds:   make(map[string]string),
		channels: make(map[string]*client.Channel),
		roles:    make(map[string]map[string]*client.Role),
		failures: make(map[string]error),
	}
}

func (f *fakeDiscord) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeDiscord) fail(method, name string) {
	f.failures[method+":"+name] = errInjected
}

func (f *fakeDiscord) check(method, name string) error {
	f.calls = append(f.calls, method+":"+name)
	if err, ok := f.failures[method+":"+name]; ok {
		return err
	}
	return nil
}

func (f *fakeDiscord) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "list:") || strings.HasPrefix(c, "get:") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *fakeDiscord) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeDiscord) addCategory(guildID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.channels[id] = &client.Channel{ID: id, GuildID: guildID, Name: name, Kind: client.ChannelKindCategory}
	return id
}

func (f *fakeDiscord) addVoice(guildID, parentID, name string, position int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.channels[id] = &client.Channel{ID: id, GuildID: guildID, Name: name, ParentID: parentID, Position: position, Kind: client.ChannelKindVoice}
	return id
}

func (f *fakeDiscord) addRole(guildID, name string, color int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	if f.roles[guildID] == nil {
		f.roles[guildID] = make(map[string]*client.Role)
	}
	f.roles[guildID][id] = &client.Role{ID: id, Name: name, Color: color}
	return id
}

// children returns channel names under parentID ordered by position
func (f *fakeDiscord) children(parentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var chans []*client.Channel
	for _, ch := range f.channels {
		if ch.ParentID == parentID {
			chans = append(chans, ch)
		}
	}
	sort.Slice(chans, func(i, j int) bool {
		if chans[i].Position == chans[j].Position {
			return chans[i].Name < chans[j].Name
		}
		return chans[i].Position < chans[j].Position
	})
	names := make([]string, 0, len(chans))
	for _, ch := range chans {
		names = append(names, ch.Name)
	}
	return names
}

func (f *fakeDiscord) roleColors(guildID string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, r := range f.roles[guildID] {
		out[r.Name] = r.Color
	}
	return out
}

func (f *fakeDiscord) GetGuild(ctx context.Context, guildID string) (*client.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("get", "guild"); err != nil {
		return nil, err
	}
	name, ok := f.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("unknown guild %s", guildID)
	}
	return &client.Guild{ID: guildID, Name: name}, nil
}

func (f *fakeDiscord) GetChannel(ctx context.Context, channelID string) (*client.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("get", "channel"); err != nil {
		return nil, err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	copied := *ch
	return &copied, nil
}

func (f *fakeDiscord) ListChannels(ctx context.Context, guildID string) ([]client.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("list", "channels"); err != nil {
		return nil, err
	}
	out := make([]client.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		if ch.GuildID == guildID {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDiscord) CreateChannel(ctx context.Context, guildID string, spec client.ChannelSpec) (*client.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("create_channel", spec.Name); err != nil {
		return nil, err
	}
	id := f.id()
	position := spec.Position
	if f.createdAt != nil {
		position = *f.createdAt
	}
	ch := &client.Channel{ID: id, GuildID: guildID, Name: spec.Name, ParentID: spec.ParentID, Position: position, Kind: spec.Kind}
	f.channels[id] = ch
	copied := *ch
	return &copied, nil
}

func (f *fakeDiscord) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := ""
	if ch, ok := f.channels[channelID]; ok {
		name = ch.Name
	}
	if err := f.check("delete_channel", name); err != nil {
		return err
	}
	delete(f.channels, channelID)
	return nil
}

func (f *fakeDiscord) MoveChannel(ctx context.Context, channelID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	if err := f.check("move_channel", ch.Name); err != nil {
		return err
	}
	ch.Position = position
	return nil
}

func (f *fakeDiscord) ListRoles(ctx context.Context, guildID string) ([]client.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("list", "roles"); err != nil {
		return nil, err
	}
	out := make([]client.Role, 0)
	for _, r := range f.roles[guildID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDiscord) CreateRole(ctx context.Context, guildID, name string, color int) (*client.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("create_role", name); err != nil {
		return nil, err
	}
	if f.roles[guildID] == nil {
		f.roles[guildID] = make(map[string]*client.Role)
	}
	id := f.id()
	role := &client.Role{ID: id, Name: name, Color: color}
	f.roles[guildID][id] = role
	copied := *role
	return &copied, nil
}

func (f *fakeDiscord) EditRoleColor(ctx context.Context, guildID, roleID string, color int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[guildID][roleID]
	if !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	if err := f.check("edit_role", role.Name); err != nil {
		return err
	}
	role.Color = color
	return nil
}

func (f *fakeDiscord) DeleteRole(ctx context.Context, guildID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := ""
	if role, ok := f.roles[guildID][roleID]; ok {
		name = role.Name
	}
	if err := f.check("delete_role", name); err != nil {
		return err
	}
	delete(f.roles[guildID], roleID)
	return nil
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func members(names ...string) []client.Member {
	out := make([]client.Member, 0, len(names))
	for i, name := range names {
		out = append(out, client.Member{ID: fmt.Sprintf("m%d", i), Name: name})
	}
	return out
}

func coloredMember(name, color string) client.Member {
	return client.Member{ID: name, Name: name, Color: &color}
}

type testServices struct {
	discord  *fakeDiscord
	pk       *MockMembershipClient
	tenants  *MockTenantStore
	fetcher  *DesiredStateFetcher
	reader   *ObservedStateReader
	apply    *ApplyService
	fronters *FronterService
	roles    *RoleService
}

func newTestServices(roleSource string) *testServices {
	logger := zap.NewNop()
	m := newTestMetrics()
	discord := newFakeDiscord()
	pk := new(MockMembershipClient)
	tenants := new(MockTenantStore)

	fetcher := NewDesiredStateFetcher(pk, roleSource, m, logger)
	reader := NewObservedStateReader(discord, m, logger)
	apply := NewApplyService(discord, m, logger)

	return &testServices{
		discord:  discord,
		pk:       pk,
		tenants:  tenants,
		fetcher:  fetcher,
		reader:   reader,
		apply:    apply,
		fronters: NewFronterService(tenants, fetcher, reader, apply, discord, logger),
		roles:    NewRoleService(tenants, fetcher, reader, apply, logger),
	}
}
