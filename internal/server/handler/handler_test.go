package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/screener"
	"github.com/alanyoungcy/cryptoscreener/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishedService(t *testing.T) *service.ScreenerService {
	t.Helper()
	svc := service.NewScreenerService(service.ScreenerServiceConfig{
		Symbols: []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Logger:  testLogger(),
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := domain.Publication{
		TickID: "tick-1",
		Metrics: []domain.SymbolMetrics{
			{Symbol: "BTC/USDT", Price: 50000, PriceChangePercent: 2.6, Score: 85, Strength: 43, Signal: domain.SignalNeutral, UpdatedAt: now},
			{Symbol: "ETH/USDT", Price: 3000, PriceChangePercent: -1.2, Score: 40, Strength: 6, Signal: domain.SignalNeutral, UpdatedAt: now},
			{Symbol: "SOL/USDT", Price: 150, PriceChangePercent: 0.2, Score: 55, Strength: 1, Signal: domain.SignalNeutral, UpdatedAt: now},
		},
		Sentiment:   domain.MarketSentiment{Score: 58, Label: "Slightly Bullish", Trend: domain.TrendBullish, Strength: 16},
		PublishedAt: now,
	}
	ev := domain.TickEvent{TickID: "tick-1", Result: domain.TickPublished, Succeeded: 3, At: now}
	if err := svc.Publish(context.Background(), pub, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return svc
}

func newMux(svc *service.ScreenerService) *http.ServeMux {
	sh := NewScreenerHandler(svc, testLogger())
	eh := NewEventsHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/screener", sh.List)
	mux.HandleFunc("GET /api/screener/{symbol}", sh.Get)
	mux.HandleFunc("GET /api/sentiment", sh.GetSentiment)
	mux.HandleFunc("GET /api/events", eh.RecentEvents)
	mux.HandleFunc("GET /api/audit", eh.AuditLog)
	mux.HandleFunc("GET /api/status", NewStatusHandler(svc, "full").GetStatus)
	mux.HandleFunc("GET /api/health", NewHealthHandler("full", testLogger()).HealthCheck)
	return mux
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestScreenerListGainers(t *testing.T) {
	mux := newMux(publishedService(t))

	rec := get(t, mux, "/api/screener?view=gainers&limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TickID    string                 `json:"tick_id"`
		View      string                 `json:"view"`
		Count     int                    `json:"count"`
		Metrics   []domain.SymbolMetrics `json:"metrics"`
		Sentiment domain.MarketSentiment `json:"sentiment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TickID != "tick-1" || resp.View != "gainers" || resp.Count != 2 {
		t.Fatalf("unexpected response header fields: %+v", resp)
	}
	if resp.Metrics[0].Symbol != "BTC/USDT" || resp.Metrics[1].Symbol != "SOL/USDT" {
		t.Fatalf("gainers order = %s, %s", resp.Metrics[0].Symbol, resp.Metrics[1].Symbol)
	}
	if resp.Sentiment.Label != "Slightly Bullish" {
		t.Fatalf("sentiment label = %q", resp.Sentiment.Label)
	}
}

type snapshotBoard struct {
	pub   domain.Publication
	views int
}

func (b *snapshotBoard) Symbol(sym string) (domain.SymbolMetrics, error) {
	return domain.SymbolMetrics{}, domain.ErrNotFound
}

func (b *snapshotBoard) View(opts screener.ViewOpts) domain.Publication {
	b.views++
	return b.pub
}

func (b *snapshotBoard) Sentiment() domain.MarketSentiment { return b.pub.Sentiment }

func TestScreenerListReadsOneSnapshot(t *testing.T) {
	board := &snapshotBoard{pub: domain.Publication{
		TickID:        "tick-7",
		Metrics:       []domain.SymbolMetrics{{Symbol: "ETH/USDT", Price: 3100}},
		Sentiment:     domain.MarketSentiment{Score: 61, Label: "Slightly Bullish"},
		FailedSymbols: []string{"BTC/USDT"},
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/screener", NewScreenerHandler(board, testLogger()).List)

	rec := get(t, mux, "/api/screener")
	var resp struct {
		TickID        string                 `json:"tick_id"`
		Count         int                    `json:"count"`
		Metrics       []domain.SymbolMetrics `json:"metrics"`
		Sentiment     domain.MarketSentiment `json:"sentiment"`
		FailedSymbols []string               `json:"failed_symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if board.views != 1 {
		t.Fatalf("board read %d times, want 1", board.views)
	}
	if resp.TickID != "tick-7" || resp.Count != 1 || resp.Metrics[0].Symbol != "ETH/USDT" ||
		resp.Sentiment.Score != 61 || len(resp.FailedSymbols) != 1 {
		t.Fatalf("response mixes snapshots: %+v", resp)
	}
}

func TestScreenerListRejectsBadParams(t *testing.T) {
	mux := newMux(publishedService(t))

	for _, target := range []string{
		"/api/screener?view=sideways",
		"/api/screener?signal=up",
	} {
		if rec := get(t, mux, target); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestScreenerSignalFilter(t *testing.T) {
	mux := newMux(publishedService(t))

	rec := get(t, mux, "/api/screener?signal=long")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count   int               `json:"count"`
		Metrics []json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || resp.Metrics == nil {
		t.Fatalf("expected empty non-null metrics, got count %d metrics %v", resp.Count, resp.Metrics)
	}
}

func TestScreenerGetSymbol(t *testing.T) {
	mux := newMux(publishedService(t))

	rec := get(t, mux, "/api/screener/eth-usdt")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var m domain.SymbolMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Symbol != "ETH/USDT" || m.Price != 3000 {
		t.Fatalf("unexpected row: %+v", m)
	}

	if rec := get(t, mux, "/api/screener/DOGE_USDT"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown symbol status = %d, want 404", rec.Code)
	}
}

func TestSentimentAndStatus(t *testing.T) {
	mux := newMux(publishedService(t))

	rec := get(t, mux, "/api/sentiment")
	var s domain.MarketSentiment
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode sentiment: %v", err)
	}
	if s.Score != 58 || s.Trend != domain.TrendBullish {
		t.Fatalf("unexpected sentiment: %+v", s)
	}

	rec = get(t, mux, "/api/status")
	var st struct {
		Mode   string            `json:"mode"`
		Status domain.FeedStatus `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Mode != "full" || st.Status.LastTickID != "tick-1" || st.Status.Degraded {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestEventsAndAudit(t *testing.T) {
	mux := newMux(publishedService(t))

	rec := get(t, mux, "/api/events?count=5")
	var resp struct {
		Count  int                `json:"count"`
		Events []domain.TickEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].TickID != "tick-1" {
		t.Fatalf("unexpected events: %+v", resp)
	}

	if rec := get(t, mux, "/api/audit"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("audit without store status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	mux := newMux(publishedService(t))
	rec := get(t, mux, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestHealthProbes(t *testing.T) {
	h := NewHealthHandler("api", testLogger()).
		WithProbe("redis", func(context.Context) error { return nil }).
		WithProbe("postgres", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string            `json:"status"`
		Mode     string            `json:"mode"`
		Backends map[string]string `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Mode != "api" {
		t.Fatalf("status/mode = %q/%q", body.Status, body.Mode)
	}
	if body.Backends["redis"] != "ok" || body.Backends["postgres"] != "error" {
		t.Fatalf("backends = %v", body.Backends)
	}
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/audit?limit=9000&offset=5&event=feed_down&symbol=btc/usdt&since=2026-03-01T00:00:00Z", nil)
	opts := parseListOpts(r)
	if opts.Limit != 500 || opts.Offset != 5 {
		t.Fatalf("limit/offset = %d/%d", opts.Limit, opts.Offset)
	}
	if opts.Event != "feed_down" || opts.Symbol != "BTC/USDT" {
		t.Fatalf("filters = %q %q", opts.Event, opts.Symbol)
	}
	if opts.Since == nil || !opts.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since = %v", opts.Since)
	}

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/audit?limit=-3", nil))
	if opts.Limit != 50 || opts.Since != nil {
		t.Fatalf("defaults = %+v", opts)
	}
}
