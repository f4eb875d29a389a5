package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// DataService publishes and lists market observations.
type DataService interface {
	SetDataPoint(ctx context.Context, code string, ts time.Time, value fixed.Int) error
	DataHistory(ctx context.Context, code string, from, to time.Time) ([]domain.DataPoint, error)
}

// DataHandler serves /api/datapoints.
type DataHandler struct {
	data   DataService
	logger *slog.Logger
}

func NewDataHandler(data DataService, logger *slog.Logger) *DataHandler {
	return &DataHandler{data: data, logger: logger.With(slog.String("handler", "datapoints"))}
}

type dataPointRequest struct {
	MarketObjectCode string    `json:"market_object_code"`
	Timestamp        time.Time `json:"timestamp"`
	Value            fixed.Int `json:"value"`
}

// Publish stores one data point.
// POST /api/datapoints
func (h *DataHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req dataPointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.data.SetDataPoint(r.Context(), req.MarketObjectCode, req.Timestamp, req.Value); err != nil {
		writeServiceError(w, r, h.logger, "set data point", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// History lists the observations of one market object, optionally bounded
// by the RFC3339 query parameters from and to.
// GET /api/datapoints/{code}
func (h *DataHandler) History(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var bounds [2]time.Time
	for i, name := range []string{"from", "to"} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, name+": expected RFC3339 timestamp")
			return
		}
		bounds[i] = t
	}
	points, err := h.data.DataHistory(r.Context(), code, bounds[0], bounds[1])
	if err != nil {
		writeServiceError(w, r, h.logger, "data history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_object_code": code,
		"count":              len(points),
		"points":             points,
	})
}
