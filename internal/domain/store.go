package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Performance restricts results to assets in one of these states.
	Performance []ContractPerformance
}

// AssetRegistry persists assets. Terms and schedule are written once by
// RegisterAsset; CommitProgress applies a progression atomically and fails
// with ErrConcurrentUpdate when the stored version moved.
type AssetRegistry interface {
	RegisterAsset(ctx context.Context, asset Asset) error
	GetAsset(ctx context.Context, id AssetID) (Asset, error)
	GetTerms(ctx context.Context, id AssetID) (Terms, error)
	GetState(ctx context.Context, id AssetID) (State, error)
	SetState(ctx context.Context, id AssetID, state State) error
	GetNextScheduledEvent(ctx context.Context, id AssetID) (Event, error)
	IsEventSettled(ctx context.Context, id AssetID, ev Event) (bool, fixed.Int, error)
	CommitProgress(ctx context.Context, update ProgressUpdate) error
	ListAssets(ctx context.Context, opts ListOpts) ([]AssetSummary, error)
	ListSettledEvents(ctx context.Context, id AssetID) ([]SettledEvent, error)
}

// SettlementInstruction asks whether an event's payoff has moved from the
// obligor to the beneficiary. Amount is the absolute payoff.
type SettlementInstruction struct {
	AssetID  AssetID
	Event    Event
	From     common.Address
	To       common.Address
	Currency string
	Amount   fixed.Int
}

// SettlementChannel confirms that obligations were paid.
type SettlementChannel interface {
	Confirm(ctx context.Context, instr SettlementInstruction) (bool, error)
}

// Payment is a transfer recorded against an asset event.
type Payment struct {
	ID       int64          `json:"id"`
	AssetID  AssetID        `json:"assetId"`
	Event    Event          `json:"event"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Currency string         `json:"currency"`
	Amount   fixed.Int      `json:"amount"`
	PaidAt   time.Time      `json:"paidAt"`
}

// SettlementLedger is a SettlementChannel backed by recorded payments.
type SettlementLedger interface {
	SettlementChannel
	RecordPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, id AssetID) ([]Payment, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
