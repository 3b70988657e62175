// Package postgres provides a PostgreSQL implementation of the
// entitlement.Store interface backed by a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// Schema is the DDL for the accounts table. Apply it with Migrate or your
// own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	premium         BOOLEAN NOT NULL DEFAULT FALSE,
	customer_id     TEXT NOT NULL DEFAULT '',
	subscription_id TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_idx ON accounts (LOWER(email));
CREATE INDEX IF NOT EXISTS accounts_customer_idx ON accounts (customer_id) WHERE customer_id <> '';
`

// Store implements entitlement.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Migrate applies the accounts schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const accountColumns = `id, email, display_name, premium, customer_id, subscription_id, updated_at`

// Put inserts or replaces an account row. Used at signup time; entitlement
// changes go through ApplyUpdate.
func (s *Store) Put(ctx context.Context, account *entitlement.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("invalid account")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, display_name, premium, customer_id, subscription_id, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				display_name = EXCLUDED.display_name,
				premium = EXCLUDED.premium,
				customer_id = EXCLUDED.customer_id,
				subscription_id = EXCLUDED.subscription_id,
				updated_at = NOW()`,
		account.ID, account.Email, account.DisplayName,
		account.Premium, account.CustomerID, account.SubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// FindByID implements entitlement.Store
func (s *Store) FindByID(ctx context.Context, id string) (*entitlement.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindByEmail implements entitlement.Store. The lookup is case-insensitive.
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email))
	return scanAccount(row)
}

// ApplyUpdate implements entitlement.Store. Nil pointer fields keep the
// stored value via COALESCE; non-nil values overwrite, so an empty string
// clears the column.
func (s *Store) ApplyUpdate(ctx context.Context, upd *entitlement.Update) (*entitlement.Account, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE accounts SET
			premium = $2,
			customer_id = COALESCE($3, customer_id),
			subscription_id = COALESCE($4, subscription_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
		upd.AccountID, upd.Premium, upd.CustomerID, upd.SubscriptionID)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*entitlement.Account, error) {
	var account entitlement.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.Premium,
		&account.CustomerID,
		&account.SubscriptionID,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlement.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	return &account, nil
}
