package escrow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
//
// CHECK constraints on every balance column back up the application's
// ErrNegativeBalance guard; a violated constraint surfaces as that
// error rather than a raw pq failure.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed balance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the event_balances table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS event_balances (
			event_id         VARCHAR(64) PRIMARY KEY,
			organizer_amount BIGINT NOT NULL DEFAULT 0 CHECK (organizer_amount >= 0),
			platform_fee     BIGINT NOT NULL DEFAULT 0 CHECK (platform_fee >= 0),
			total_withdrawn  BIGINT NOT NULL DEFAULT 0 CHECK (total_withdrawn >= 0),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, eventID string) (*EventBalance, error) {
	var b EventBalance
	err := p.db.QueryRowContext(ctx, `
		SELECT event_id, organizer_amount, platform_fee, total_withdrawn, updated_at
		FROM event_balances WHERE event_id = $1
	`, eventID).Scan(&b.EventID, &b.OrganizerAmount, &b.PlatformFee, &b.TotalWithdrawn, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return &EventBalance{EventID: eventID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

func (p *PostgresStore) Credit(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	if organizerDelta < 0 || platformDelta < 0 {
		return ErrNegativeBalance
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO event_balances (event_id, organizer_amount, platform_fee)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET
			organizer_amount = event_balances.organizer_amount + EXCLUDED.organizer_amount,
			platform_fee     = event_balances.platform_fee + EXCLUDED.platform_fee,
			updated_at       = NOW()
	`, eventID, organizerDelta, platformDelta)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (p *PostgresStore) DebitOrganizer(ctx context.Context, eventID string, amount int64) error {
	if amount < 0 {
		return ErrNegativeBalance
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE event_balances SET
			organizer_amount = organizer_amount - $2,
			total_withdrawn  = total_withdrawn + $2,
			updated_at       = NOW()
		WHERE event_id = $1 AND organizer_amount >= $2
	`, eventID, amount)
	if err != nil {
		return checkConstraintErr(err, "debit organizer")
	}
	return requireRow(result)
}

func (p *PostgresStore) DebitPlatform(ctx context.Context, eventID string, amount int64) error {
	if amount < 0 {
		return ErrNegativeBalance
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE event_balances SET
			platform_fee = platform_fee - $2,
			updated_at   = NOW()
		WHERE event_id = $1 AND platform_fee >= $2
	`, eventID, amount)
	if err != nil {
		return checkConstraintErr(err, "debit platform")
	}
	return requireRow(result)
}

func (p *PostgresStore) Reverse(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	if organizerDelta < 0 || platformDelta < 0 {
		return ErrNegativeBalance
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE event_balances SET
			organizer_amount = organizer_amount - $2,
			platform_fee     = platform_fee - $3,
			updated_at       = NOW()
		WHERE event_id = $1 AND organizer_amount >= $2 AND platform_fee >= $3
	`, eventID, organizerDelta, platformDelta)
	if err != nil {
		return checkConstraintErr(err, "reverse balance")
	}
	return requireRow(result)
}

func (p *PostgresStore) SumAll(ctx context.Context) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(organizer_amount + platform_fee), 0) FROM event_balances
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return total, nil
}

func (p *PostgresStore) ListBalances(ctx context.Context, limit int) ([]*EventBalance, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_id, organizer_amount, platform_fee, total_withdrawn, updated_at
		FROM event_balances ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EventBalance
	for rows.Next() {
		var b EventBalance
		if err := rows.Scan(&b.EventID, &b.OrganizerAmount, &b.PlatformFee, &b.TotalWithdrawn, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// requireRow maps a zero-row UPDATE to ErrNegativeBalance: the guard in
// the WHERE clause is the only reason a balanced debit misses.
func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNegativeBalance
	}
	return nil
}

// checkConstraintErr converts CHECK violations into ErrNegativeBalance.
func checkConstraintErr(err error, op string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
		return ErrNegativeBalance
	}
	return fmt.Errorf("%s: %w", op, err)
}
