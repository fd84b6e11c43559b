package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a non-negative integer query parameter. Missing or invalid
// values yield def; values above max are capped.
func queryInt(r *http.Request, name string, def, max int) int {
	n := def
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			n = parsed
		}
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// parseListOpts extracts pagination and filter parameters for the audit log.
// Defaults: limit=50 (max 500), offset=0. since accepts RFC 3339.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := queryInt(r, "limit", 50, 500)
	if limit == 0 {
		limit = 50
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: queryInt(r, "offset", 0, 0),
		Event:  strings.TrimSpace(q.Get("event")),
		Symbol: strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}
	return opts
}

// pathSymbol reads the {symbol} path value. Clients may send BTC-USDT or
// BTC_USDT since a slash cannot appear in a path segment.
func pathSymbol(r *http.Request) string {
	sym := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	return strings.NewReplacer("-", "/", "_", "/").Replace(sym)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
