package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// Ledger implements domain.SettlementLedger. An instruction is confirmed
// once payments between the same parties, in the same currency and for
// the same event add up to at least the instructed amount.
type Ledger struct {
	mu       sync.RWMutex
	payments []domain.Payment
	nextID   int64
}

var _ domain.SettlementLedger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) RecordPayment(_ context.Context, p domain.Payment) error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("memory: record payment: non-positive amount %s", p.Amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	p.ID = l.nextID
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	l.payments = append(l.payments, p)
	return nil
}

func (l *Ledger) ListPayments(_ context.Context, id domain.AssetID) ([]domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Payment
	for _, p := range l.payments {
		if p.AssetID == id {
			out = append(out, p)
		}
	}
	return slices.Clip(out), nil
}

func (l *Ledger) Confirm(_ context.Context, instr domain.SettlementInstruction) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	paid := fixed.Zero
	for _, p := range l.payments {
		if p.AssetID != instr.AssetID || !p.Event.Equal(instr.Event) ||
			p.From != instr.From || p.To != instr.To || p.Currency != instr.Currency {
			continue
		}
		var err error
		if paid, err = paid.Add(p.Amount); err != nil {
			return false, fmt.Errorf("memory: confirm: %w", err)
		}
	}
	return paid.Cmp(instr.Amount) >= 0, nil
}
