package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const probeTimeout = 2 * time.Second

// Probe checks one backend dependency.
type Probe func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	probes    map[string]Probe
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler for a process running in mode.
func NewHealthHandler(mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		probes:    make(map[string]Probe),
		logger:    logger,
	}
}

// WithProbe registers a backend check reported under name.
func (h *HealthHandler) WithProbe(name string, p Probe) *HealthHandler {
	h.probes[name] = p
	return h
}

// HealthCheck reports liveness plus the state of every registered backend.
// A failing backend marks the process degraded but still answers 200 so that
// a redis or postgres outage does not get the process restarted.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if len(h.probes) > 0 {
		names := make([]string, 0, len(h.probes))
		for name := range h.probes {
			names = append(names, name)
		}
		sort.Strings(names)

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()
		backends := make(map[string]string, len(names))
		for _, name := range names {
			if err := h.probes[name](ctx); err != nil {
				h.logger.WarnContext(ctx, "health probe failed",
					slog.String("backend", name),
					slog.String("error", err.Error()),
				)
				backends[name] = "error"
				status = "degraded"
				continue
			}
			backends[name] = "ok"
		}
		resp["backends"] = backends
	}

	resp["status"] = status
	writeJSON(w, http.StatusOK, resp)
}
