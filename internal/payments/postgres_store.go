package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments table if it doesn't exist. A sequence
// column keeps the buyer index in insertion order across reassignment.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			payment_id       VARCHAR(80) PRIMARY KEY,
			seq              BIGSERIAL,
			event_id         VARCHAR(64) NOT NULL,
			buyer_address    VARCHAR(42) NOT NULL,
			ticket_tier_id   VARCHAR(64) NOT NULL,
			token_address    VARCHAR(42) NOT NULL,
			amount           BIGINT NOT NULL CHECK (amount >= 0),
			platform_fee     BIGINT NOT NULL CHECK (platform_fee >= 0),
			organizer_amount BIGINT NOT NULL CHECK (organizer_amount >= 0),
			status           VARCHAR(20) NOT NULL DEFAULT 'pending',
			transaction_hash VARCHAR(80),
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			confirmed_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payments_buyer ON payments(buyer_address, seq);
		CREATE INDEX IF NOT EXISTS idx_payments_event ON payments(event_id);
	`)
	return err
}

const paymentColumns = `payment_id, event_id, buyer_address, ticket_tier_id, token_address,
	amount, platform_fee, organizer_amount, status, transaction_hash, created_at, confirmed_at`

func (p *PostgresStore) Create(ctx context.Context, payment *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (
			payment_id, event_id, buyer_address, ticket_tier_id, token_address,
			amount, platform_fee, organizer_amount, status, transaction_hash, created_at
		) VALUES ($1, $2, LOWER($3), $4, LOWER($5), $6, $7, $8, $9, $10, $11)
	`,
		payment.PaymentID, payment.EventID, payment.BuyerAddress, payment.TicketTierID,
		payment.TokenAddress, payment.Amount, payment.PlatformFee, payment.OrganizerAmount,
		string(payment.Status), nullString(payment.TransactionHash), payment.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, paymentID string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1
	`, paymentID)

	payment, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

func (p *PostgresStore) Update(ctx context.Context, payment *Payment) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET
			status           = $2,
			transaction_hash = $3,
			confirmed_at     = $4
		WHERE payment_id = $1
	`,
		payment.PaymentID, string(payment.Status),
		nullString(payment.TransactionHash), payment.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) ListByBuyer(ctx context.Context, buyerAddr, afterID string, limit int) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE buyer_address = LOWER($1)
		  AND ($2 = '' OR seq > (SELECT seq FROM payments WHERE payment_id = $2))
		ORDER BY seq LIMIT $3
	`, buyerAddr, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by buyer: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPayments(rows)
}

func (p *PostgresStore) Reassign(ctx context.Context, paymentID, fromAddr, toAddr string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET buyer_address = LOWER($3)
		WHERE payment_id = $1 AND buyer_address = LOWER($2)
	`, paymentID, fromAddr, toAddr)
	if err != nil {
		return fmt.Errorf("reassign payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payments
		WHERE event_id = $1 AND status NOT IN ('refunded', 'failed')
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by event: %w", err)
	}
	return count, nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scannable) (*Payment, error) {
	var p Payment
	var status string
	var txHash sql.NullString
	var confirmedAt sql.NullTime

	err := row.Scan(
		&p.PaymentID, &p.EventID, &p.BuyerAddress, &p.TicketTierID, &p.TokenAddress,
		&p.Amount, &p.PlatformFee, &p.OrganizerAmount, &status, &txHash,
		&p.CreatedAt, &confirmedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = Status(status)
	if txHash.Valid {
		p.TransactionHash = txHash.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.ConfirmedAt = &t
	}
	return &p, nil
}

func scanPayments(rows *sql.Rows) ([]*Payment, error) {
	var result []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
