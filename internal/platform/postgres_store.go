package platform

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed platform store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the platform tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS platform_settings (
			id                SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			admin_address     VARCHAR(42) NOT NULL,
			token_address     VARCHAR(42) NOT NULL,
			platform_wallet   VARCHAR(42) NOT NULL,
			registry_address  VARCHAR(42) NOT NULL,
			holding_address   VARCHAR(42) NOT NULL,
			version           INTEGER NOT NULL DEFAULT 1,
			initialized_at    TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS whitelisted_tokens (
			token_address VARCHAR(42) PRIMARY KEY,
			added_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS transfer_fees (
			event_id   VARCHAR(64) PRIMARY KEY,
			fee        BIGINT NOT NULL CHECK (fee >= 0),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := p.db.QueryRowContext(ctx, `
		SELECT admin_address, token_address, platform_wallet, registry_address,
			holding_address, version, initialized_at, updated_at
		FROM platform_settings WHERE id = 1
	`).Scan(
		&s.AdminAddress, &s.TokenAddress, &s.PlatformWallet, &s.RegistryAddress,
		&s.HoldingAddress, &s.Version, &s.InitializedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	s.Initialized = true
	return &s, nil
}

func (p *PostgresStore) PutSettings(ctx context.Context, s *Settings) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO platform_settings (
			id, admin_address, token_address, platform_wallet, registry_address,
			holding_address, version, initialized_at, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			admin_address    = EXCLUDED.admin_address,
			token_address    = EXCLUDED.token_address,
			platform_wallet  = EXCLUDED.platform_wallet,
			registry_address = EXCLUDED.registry_address,
			holding_address  = EXCLUDED.holding_address,
			version          = EXCLUDED.version,
			updated_at       = EXCLUDED.updated_at
	`,
		s.AdminAddress, s.TokenAddress, s.PlatformWallet, s.RegistryAddress,
		s.HoldingAddress, s.Version, s.InitializedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

func (p *PostgresStore) AddToken(ctx context.Context, tokenAddr string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO whitelisted_tokens (token_address) VALUES (LOWER($1))
		ON CONFLICT (token_address) DO NOTHING
	`, tokenAddr)
	if err != nil {
		return fmt.Errorf("add token: %w", err)
	}
	return nil
}

func (p *PostgresStore) RemoveToken(ctx context.Context, tokenAddr string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM whitelisted_tokens WHERE token_address = LOWER($1)
	`, tokenAddr)
	if err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

func (p *PostgresStore) IsTokenWhitelisted(ctx context.Context, tokenAddr string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM whitelisted_tokens WHERE token_address = LOWER($1))
	`, tokenAddr).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) ListTokens(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT token_address FROM whitelisted_tokens ORDER BY token_address
	`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) SetTransferFee(ctx context.Context, eventID string, fee int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transfer_fees (event_id, fee, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO UPDATE SET fee = EXCLUDED.fee, updated_at = NOW()
	`, eventID, fee)
	if err != nil {
		return fmt.Errorf("set transfer fee: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTransferFee(ctx context.Context, eventID string) (int64, error) {
	var fee int64
	err := p.db.QueryRowContext(ctx, `
		SELECT fee FROM transfer_fees WHERE event_id = $1
	`, eventID).Scan(&fee)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get transfer fee: %w", err)
	}
	return fee, nil
}
