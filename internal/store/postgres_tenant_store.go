package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// PostgresTenantStore implements TenantStore for PostgreSQL
type PostgresTenantStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresTenantStore creates a new PostgreSQL tenant store
func NewPostgresTenantStore(
	ctx context.Context,
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	maxConnLifetime time.Duration,
	logger *zap.Logger,
) (*PostgresTenantStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConnLifetime > 0 {
		config.MaxConnLifetime = maxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresTenantStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Migrate creates the settings tables when missing
func (s *PostgresTenantStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema applied")
	return nil
}

// GetTenant retrieves both settings rows for a guild
func (s *PostgresTenantStore) GetTenant(ctx context.Context, guildID string) (*model.Tenant, error) {
	id, err := util.SnowflakeToInt64(guildID)
	if err != nil {
		return nil, err
	}

	row := tenantRow{guildID: id}

	err = s.pool.QueryRow(ctx,
		`SELECT user_id, system_id, token FROM mod_pk_guilds WHERE guild_id = $1`, id,
	).Scan(&row.userID, &row.systemID, &row.token)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get guild settings: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT category_id FROM mod_pk_fronters WHERE guild_id = $1`, id,
	).Scan(&row.categoryID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get fronter category: %w", err)
	}

	return row.toTenant()
}

// ListFronterTenants retrieves every guild with a fronter category
func (s *PostgresTenantStore) ListFronterTenants(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT f.guild_id, f.category_id, g.user_id, g.system_id, g.token
		FROM mod_pk_fronters f
		LEFT JOIN mod_pk_guilds g ON g.guild_id = f.guild_id
	`
	return s.listTenants(ctx, query)
}

// ListMembershipTenants retrieves every guild with PluralKit settings
func (s *PostgresTenantStore) ListMembershipTenants(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT g.guild_id, f.category_id, g.user_id, g.system_id, g.token
		FROM mod_pk_guilds g
		LEFT JOIN mod_pk_fronters f ON f.guild_id = g.guild_id
	`
	return s.listTenants(ctx, query)
}

func (s *PostgresTenantStore) listTenants(ctx context.Context, query string) ([]*model.Tenant, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*model.Tenant, 0)
	for rows.Next() {
		var row tenantRow
		if err := rows.Scan(&row.guildID, &row.categoryID, &row.userID, &row.systemID, &row.token); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}

		tenant, err := row.toTenant()
		if err != nil {
			s.logger.Warn("Skipping tenant with invalid ids",
				zap.Int64("guild_id", row.guildID),
				zap.Error(err))
			continue
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// SaveGuildSettings upserts the PluralKit settings for a guild
func (s *PostgresTenantStore) SaveGuildSettings(ctx context.Context, settings *model.GuildSettings) error {
	guildID, err := util.SnowflakeToInt64(settings.GuildID)
	if err != nil {
		return err
	}
	userID, err := util.SnowflakeToInt64(settings.UserID)
	if err != nil {
		return err
	}

	var token *string
	if settings.Token != "" {
		token = &settings.Token
	}

	query := `
		INSERT INTO mod_pk_guilds (guild_id, user_id, system_id, token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id) DO UPDATE
		SET user_id = $2, system_id = $3, token = $4
	`
	if _, err := s.pool.Exec(ctx, query, guildID, userID, settings.SystemID, token); err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

// SaveFronterCategory upserts the fronter category for a guild
func (s *PostgresTenantStore) SaveFronterCategory(ctx context.Context, category *model.FronterCategory) error {
	guildID, err := util.SnowflakeToInt64(category.GuildID)
	if err != nil {
		return err
	}
	categoryID, err := util.SnowflakeToInt64(category.CategoryID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mod_pk_fronters (guild_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET category_id = $2
	`
	if _, err := s.pool.Exec(ctx, query, guildID, categoryID); err != nil {
		return fmt.Errorf("failed to save fronter category: %w", err)
	}
	return nil
}

// CountFronterSystems counts distinct systems with fronter channels set up
func (s *PostgresTenantStore) CountFronterSystems(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(DISTINCT g.system_id)
		FROM mod_pk_fronters f
		INNER JOIN mod_pk_guilds g ON g.guild_id = f.guild_id
	`
	var count int64
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count systems: %w", err)
	}
	return int(count), nil
}

// Ping checks the database connection
func (s *PostgresTenantStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresTenantStore) Close() {
	s.pool.Close()
}

// tenantRow holds nullable column values of a joined tenant query
type tenantRow struct {
	guildID    int64
	categoryID *int64
	userID     *int64
	systemID   *string
	token      *string
}

func (r tenantRow) toTenant() (*model.Tenant, error) {
	guildID, err := util.Int64ToSnowflake(r.guildID)
	if err != nil {
		return nil, err
	}

	tenant := &model.Tenant{GuildID: guildID}
	if r.categoryID != nil {
		if tenant.CategoryID, err = util.Int64ToSnowflake(*r.categoryID); err != nil {
			return nil, err
		}
	}
	if r.userID != nil {
		if tenant.UserID, err = util.Int64ToSnowflake(*r.userID); err != nil {
			return nil, err
		}
	}
	if r.systemID != nil {
		tenant.SystemID = *r.systemID
	}
	if r.token != nil {
		tenant.Token = *r.token
	}
	return tenant, nil
}
