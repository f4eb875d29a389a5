package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// AssetID identifies a registered asset.
type AssetID = common.Hash

// ParseAssetID parses a 0x-prefixed 32-byte hex identifier.
func ParseAssetID(s string) (AssetID, error) {
	b, err := hexBytes(s)
	if err != nil || len(b) != common.HashLength {
		return AssetID{}, fmt.Errorf("%w: asset id %q", ErrInvalidID, s)
	}
	return common.BytesToHash(b), nil
}

// NewAssetID derives an asset identifier as keccak256 of the canonical JSON
// of terms and ownership followed by the nonce.
func NewAssetID(terms Terms, owners Ownership, nonce uint64) (AssetID, error) {
	payload, err := json.Marshal(struct {
		Terms     Terms     `json:"terms"`
		Ownership Ownership `json:"ownership"`
	}{terms, owners})
	if err != nil {
		return AssetID{}, fmt.Errorf("domain: asset id: %w", err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(payload, n[:]), nil
}

// Ownership names the parties of an asset. Obligors pay and beneficiaries
// receive.
type Ownership struct {
	CreatorObligor          common.Address `json:"creatorObligor"`
	CreatorBeneficiary      common.Address `json:"creatorBeneficiary"`
	CounterpartyObligor     common.Address `json:"counterpartyObligor"`
	CounterpartyBeneficiary common.Address `json:"counterpartyBeneficiary"`
}

// Parties returns payer and payee for a payoff. A positive payoff flows
// from the counterparty to the creator.
func (o Ownership) Parties(payoff fixed.Int) (from, to common.Address) {
	if payoff.Sign() > 0 {
		return o.CounterpartyObligor, o.CreatorBeneficiary
	}
	return o.CreatorObligor, o.CounterpartyBeneficiary
}

// Asset is a registered contract with its progression bookkeeping.
type Asset struct {
	ID        AssetID   `json:"id"`
	Terms     Terms     `json:"terms"`
	State     State     `json:"state"`
	Ownership Ownership `json:"ownership"`
	// FinalizedState is the last performant state, kept while the asset is
	// not performant so a late settlement can be applied on top of it.
	FinalizedState *State    `json:"finalizedState,omitempty"`
	Schedule       []Event   `json:"schedule"`
	Cursor         int       `json:"cursor"`
	PendingEvents  []Event   `json:"pendingEvents"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NextScheduledEvent returns the event at the cursor or NoEvent.
func (a Asset) NextScheduledEvent() Event {
	if a.Cursor < 0 || a.Cursor >= len(a.Schedule) {
		return NoEvent
	}
	return a.Schedule[a.Cursor]
}

// PendingEvent returns the oldest unsettled event or NoEvent.
func (a Asset) PendingEvent() Event {
	if len(a.PendingEvents) == 0 {
		return NoEvent
	}
	return a.PendingEvents[0]
}

// Summary returns the list view of the asset.
func (a Asset) Summary() AssetSummary {
	return AssetSummary{
		ID:           a.ID,
		ContractType: a.Terms.ContractType,
		Performance:  a.State.ContractPerformance,
		StatusDate:   a.State.StatusDate,
		NextEvent:    a.NextScheduledEvent(),
		Pending:      len(a.PendingEvents),
		UpdatedAt:    a.UpdatedAt,
	}
}

// AssetSummary is a compact listing row.
type AssetSummary struct {
	ID           AssetID             `json:"id"`
	ContractType ContractType        `json:"contractType"`
	Performance  ContractPerformance `json:"performance"`
	StatusDate   time.Time           `json:"statusDate"`
	NextEvent    Event               `json:"nextEvent"`
	Pending      int                 `json:"pending"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// SettledEvent records that an event was applied, with its payoff.
type SettledEvent struct {
	Event     Event     `json:"event"`
	Payoff    fixed.Int `json:"payoff"`
	SettledAt time.Time `json:"settledAt"`
}

// ProgressUpdate is the atomic write produced by one progression.
type ProgressUpdate struct {
	AssetID         AssetID
	ExpectedVersion int64
	State           State
	FinalizedState  *State
	Cursor          int
	PendingEvents   []Event
	// Settled is nil when the event was not settled.
	Settled *SettledEvent
}
