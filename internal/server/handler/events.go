package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// EventLog exposes recent tick events and the audit trail.
type EventLog interface {
	RecentEvents(ctx context.Context, count int) ([]domain.TickEvent, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// EventsHandler serves tick events and audit entries.
type EventsHandler struct {
	log    EventLog
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(log EventLog, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{log: log, logger: logger}
}

// RecentEvents returns the latest tick events, newest first.
// GET /api/events?count=20
func (h *EventsHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	count := queryInt(r, "count", 20, 100)
	events, err := h.log.RecentEvents(r.Context(), count)
	if err != nil {
		logHandler(h.logger, "events.recent").Error("read events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "event stream unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// AuditLog lists audit entries, newest first.
// GET /api/audit?limit=50&offset=0&event=signal_activated&symbol=BTC/USDT
func (h *EventsHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.log.AuditLog(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "audit log not configured")
			return
		}
		logHandler(h.logger, "events.audit").Error("list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"limit":   opts.Limit,
		"offset":  opts.Offset,
		"entries": entries,
	})
}
