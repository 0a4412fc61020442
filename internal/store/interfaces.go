package store

import (
	"context"
	"errors"
	"time"

	"github.com/z0w13/dmserv/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// TenantStore is the persisted per-guild configuration.
// Rows are written by setup commands and read on every reconciliation tick.
type TenantStore interface {
	// GetTenant joins both settings rows for one guild. Missing rows leave the
	// corresponding fields empty rather than failing.
	GetTenant(ctx context.Context, guildID string) (*model.Tenant, error)

	// ListFronterTenants returns every guild with a fronter category row
	ListFronterTenants(ctx context.Context) ([]*model.Tenant, error)

	// ListMembershipTenants returns every guild with PluralKit settings
	ListMembershipTenants(ctx context.Context) ([]*model.Tenant, error)

	SaveGuildSettings(ctx context.Context, settings *model.GuildSettings) error
	SaveFronterCategory(ctx context.Context, category *model.FronterCategory) error

	// CountFronterSystems counts distinct systems with fronter channels set up
	CountFronterSystems(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// LeaseStore grants exclusive, expiring leases keyed by name
type LeaseStore interface {
	// Acquire takes the lease when it is free or expired; false means held
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release frees the lease only when it is still held by token
	Release(ctx context.Context, key, token string) error

	Ping(ctx context.Context) error
	Close() error
}

// Cache interface for in-memory caching
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
