package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// SettlementService records payments made by the settlement rails.
type SettlementService interface {
	RecordPayment(ctx context.Context, p domain.Payment) error
}

// SettlementHandler serves POST /api/settlements.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger.With(slog.String("handler", "settlements"))}
}

type settlementRequest struct {
	AssetID  domain.AssetID `json:"asset_id"`
	Event    domain.Event   `json:"event"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Currency string         `json:"currency"`
	Amount   fixed.Int      `json:"amount"`
	PaidAt   time.Time      `json:"paid_at"`
}

// Record books a payment towards an asset event.
// POST /api/settlements
func (h *SettlementHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := domain.Payment{
		AssetID:  req.AssetID,
		Event:    req.Event,
		From:     req.From,
		To:       req.To,
		Currency: req.Currency,
		Amount:   req.Amount,
		PaidAt:   req.PaidAt,
	}
	if err := h.settlements.RecordPayment(r.Context(), p); err != nil {
		writeServiceError(w, r, h.logger, "record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recorded": true, "event": req.Event})
}
