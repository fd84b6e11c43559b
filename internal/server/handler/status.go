package handler

import (
	"net/http"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// StatusSource reports the feed status.
type StatusSource interface {
	Status() domain.FeedStatus
}

// StatusHandler serves the orchestrator state for the dashboard.
type StatusHandler struct {
	source StatusSource
	mode   string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource, mode string) *StatusHandler {
	return &StatusHandler{source: source, mode: mode}
}

// GetStatus responds with the feed status. A degraded feed still answers 200;
// clients read the degraded flag and message to show a retrying indicator.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"status": h.source.Status(),
	})
}
