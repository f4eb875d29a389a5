package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/service"
)

// AssetService is what the asset endpoints need from the service layer.
type AssetService interface {
	Initialize(ctx context.Context, req actor.InitializeRequest) (domain.Asset, error)
	Get(ctx context.Context, id domain.AssetID) (domain.Asset, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AssetSummary, error)
	Schedule(ctx context.Context, id domain.AssetID) (service.ScheduleView, error)
	Progress(ctx context.Context, id domain.AssetID) (actor.ProgressResult, error)
	ProgressWith(ctx context.Context, id domain.AssetID, ev domain.Event) (actor.ProgressResult, error)
	Payments(ctx context.Context, id domain.AssetID) ([]domain.Payment, error)
}

// AssetHandler serves the asset lifecycle endpoints.
type AssetHandler struct {
	assets AssetService
	logger *slog.Logger
}

func NewAssetHandler(assets AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, logger: logger.With(slog.String("handler", "assets"))}
}

// createAssetRequest omits schedule to have it generated; an empty array
// registers an asset without events.
type createAssetRequest struct {
	Terms     domain.Terms     `json:"terms"`
	Ownership domain.Ownership `json:"ownership"`
	Schedule  []domain.Event   `json:"schedule"`
	Nonce     uint64           `json:"nonce"`
}

// Create registers a new asset.
// POST /api/assets
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := h.assets.Initialize(r.Context(), actor.InitializeRequest{
		Terms:     req.Terms,
		Schedule:  req.Schedule,
		Ownership: req.Ownership,
		Nonce:     req.Nonce,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "initialize asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

type listAssetsResponse struct {
	Assets []domain.AssetSummary `json:"assets"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// List returns asset summaries.
// GET /api/assets?performance=DL,DQ&limit=50&offset=0
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assets, err := h.assets.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list assets", err)
		return
	}
	if assets == nil {
		assets = []domain.AssetSummary{}
	}
	writeJSON(w, http.StatusOK, listAssetsResponse{Assets: assets, Limit: opts.Limit, Offset: opts.Offset})
}

// Get returns terms, state, cursor and pending events of one asset.
// GET /api/assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := h.assets.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// Schedule returns the schedule with cursor, pending and settled events.
// GET /api/assets/{id}/schedule
func (h *AssetHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.assets.Schedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Progress applies the next due event.
// POST /api/assets/{id}/progress
func (h *AssetHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.assets.Progress(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// progressWithRequest names the event either by its encoding or by type
// and time.
type progressWithRequest struct {
	Event *domain.Event `json:"event"`
	Type  string        `json:"type"`
	Time  time.Time     `json:"time"`
}

func (p progressWithRequest) event() (domain.Event, error) {
	if p.Event != nil {
		return *p.Event, nil
	}
	t, err := domain.ParseEventType(p.Type)
	if err != nil {
		return domain.NoEvent, err
	}
	return domain.MakeEvent(t, p.Time)
}

// ProgressWith applies a caller-supplied event.
// POST /api/assets/{id}/progress-with
func (h *AssetHandler) ProgressWith(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req progressWithRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := req.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.assets.ProgressWith(r.Context(), id, ev)
	if err != nil {
		writeServiceError(w, r, h.logger, "progress with", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Payments lists the payments recorded against an asset.
// GET /api/assets/{id}/payments
func (h *AssetHandler) Payments(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := h.assets.Payments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list payments", err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}
