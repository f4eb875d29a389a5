package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
)

// SchedulePreviewer generates schedules for unregistered terms.
type SchedulePreviewer interface {
	PreviewSchedule(terms domain.Terms, from, to time.Time) ([]domain.Event, error)
}

// ScheduleHandler serves POST /api/schedule/preview.
type ScheduleHandler struct {
	previewer SchedulePreviewer
	logger    *slog.Logger
}

func NewScheduleHandler(previewer SchedulePreviewer, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{previewer: previewer, logger: logger.With(slog.String("handler", "schedule"))}
}

type previewRequest struct {
	Terms domain.Terms `json:"terms"`
	From  time.Time    `json:"from"`
	To    time.Time    `json:"to"`
}

// Preview returns the schedule the terms would produce.
// POST /api/schedule/preview
func (h *ScheduleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.previewer.PreviewSchedule(req.Terms, req.From, req.To)
	if err != nil {
		writeServiceError(w, r, h.logger, "preview schedule", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
