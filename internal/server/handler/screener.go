package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/screener"
)

// Board is the read side of the screener service.
type Board interface {
	Symbol(sym string) (domain.SymbolMetrics, error)
	View(opts screener.ViewOpts) domain.Publication
	Sentiment() domain.MarketSentiment
}

// ScreenerHandler serves the metrics board and market sentiment.
type ScreenerHandler struct {
	board  Board
	logger *slog.Logger
}

// NewScreenerHandler creates a ScreenerHandler.
func NewScreenerHandler(board Board, logger *slog.Logger) *ScreenerHandler {
	return &ScreenerHandler{board: board, logger: logger}
}

type screenerResponse struct {
	TickID        string                 `json:"tick_id,omitempty"`
	View          screener.View          `json:"view"`
	Count         int                    `json:"count"`
	Metrics       []domain.SymbolMetrics `json:"metrics"`
	Sentiment     domain.MarketSentiment `json:"sentiment"`
	FailedSymbols []string               `json:"failed_symbols,omitempty"`
	PublishedAt   time.Time              `json:"published_at"`
}

// List returns the board, optionally sorted and filtered.
// GET /api/screener?view=gainers&limit=10&signal=long
func (h *ScreenerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	view, err := screener.ParseView(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var signal domain.SignalDirection
	if v := strings.TrimSpace(q.Get("signal")); v != "" {
		signal = domain.SignalDirection(strings.ToUpper(v))
		switch signal {
		case domain.SignalLong, domain.SignalShort, domain.SignalNeutral:
		default:
			writeError(w, http.StatusBadRequest, "signal must be long, short or neutral")
			return
		}
	}

	pub := h.board.View(screener.ViewOpts{
		View:   view,
		Signal: signal,
		Limit:  queryInt(r, "limit", 0, 500),
	})
	writeJSON(w, http.StatusOK, screenerResponse{
		TickID:        pub.TickID,
		View:          view,
		Count:         len(pub.Metrics),
		Metrics:       pub.Metrics,
		Sentiment:     pub.Sentiment,
		FailedSymbols: pub.FailedSymbols,
		PublishedAt:   pub.PublishedAt,
	})
}

// Get returns one symbol's row.
// GET /api/screener/{symbol}
func (h *ScreenerHandler) Get(w http.ResponseWriter, r *http.Request) {
	sym := pathSymbol(r)
	if sym == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	m, err := h.board.Symbol(sym)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "symbol not found")
			return
		}
		logHandler(h.logger, "screener.get").Error("lookup failed",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetSentiment returns the market-wide sentiment reading.
// GET /api/sentiment
func (h *ScreenerHandler) GetSentiment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.Sentiment())
}
