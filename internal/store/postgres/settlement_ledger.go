package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// SettlementLedger implements domain.SettlementLedger over the
// settlement_payments table. Payments are recorded by whatever rail moved
// the funds; Confirm checks they cover an instruction.
type SettlementLedger struct {
	pool *pgxpool.Pool
}

var _ domain.SettlementLedger = (*SettlementLedger)(nil)

// NewSettlementLedger creates a new SettlementLedger backed by the given pool.
func NewSettlementLedger(pool *pgxpool.Pool) *SettlementLedger {
	return &SettlementLedger{pool: pool}
}

// RecordPayment inserts a payment. PaidAt defaults to now.
func (s *SettlementLedger) RecordPayment(ctx context.Context, p domain.Payment) error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("postgres: record payment: non-positive amount %s", p.Amount)
	}
	const query = `
		INSERT INTO settlement_payments (asset_id, event, from_addr, to_addr, currency, amount, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, COALESCE($7, NOW()))`

	var paidAt any
	if !p.PaidAt.IsZero() {
		paidAt = p.PaidAt
	}
	key, err := domain.Encode(p.Event)
	if err != nil {
		return fmt.Errorf("postgres: record payment %s: %w", p.AssetID.Hex(), err)
	}
	_, err = s.pool.Exec(ctx, query,
		p.AssetID.Bytes(), key.Bytes(),
		p.From.Bytes(), p.To.Bytes(), p.Currency, p.Amount.String(), paidAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record payment %s %s: %w", p.AssetID.Hex(), p.Event, err)
	}
	return nil
}

// ListPayments returns the payments recorded against an asset, oldest first.
func (s *SettlementLedger) ListPayments(ctx context.Context, id domain.AssetID) ([]domain.Payment, error) {
	const query = `
		SELECT id, event, from_addr, to_addr, currency, amount::text, paid_at
		FROM settlement_payments WHERE asset_id = $1 ORDER BY paid_at, id`

	rows, err := s.pool.Query(ctx, query, id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: list payments %s: %w", id.Hex(), err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var (
			p               domain.Payment
			event, from, to []byte
			amount          string
		)
		if err := rows.Scan(&p.ID, &event, &from, &to, &p.Currency, &amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		p.AssetID = id
		if p.Event, err = domain.Decode(common.BytesToHash(event)); err != nil {
			return nil, fmt.Errorf("postgres: decode payment event: %w", err)
		}
		p.From = common.BytesToAddress(from)
		p.To = common.BytesToAddress(to)
		if p.Amount, err = fixed.Parse(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse payment amount: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list payments rows: %w", err)
	}
	return out, nil
}

// Confirm sums the payments for the instructed event between the same
// parties and currency.
func (s *SettlementLedger) Confirm(ctx context.Context, instr domain.SettlementInstruction) (bool, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0) >= $6::numeric
		FROM settlement_payments
		WHERE asset_id = $1 AND event = $2 AND from_addr = $3 AND to_addr = $4 AND currency = $5`

	key, err := domain.Encode(instr.Event)
	if err != nil {
		return false, fmt.Errorf("postgres: confirm %s: %w", instr.AssetID.Hex(), err)
	}
	var covered bool
	err = s.pool.QueryRow(ctx, query,
		instr.AssetID.Bytes(), key.Bytes(),
		instr.From.Bytes(), instr.To.Bytes(), instr.Currency, instr.Amount.String(),
	).Scan(&covered)
	if err != nil {
		return false, fmt.Errorf("postgres: confirm %s %s: %w", instr.AssetID.Hex(), instr.Event, err)
	}
	return covered, nil
}
