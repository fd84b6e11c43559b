package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestObserveTickRegistersMetrics(t *testing.T) {
	ObserveTick(domain.TickEvent{Result: domain.TickPublished, Duration: 200 * time.Millisecond}, []string{"BTC/USDT"})
	ObservePublication(domain.Publication{
		Metrics: []domain.SymbolMetrics{
			{Symbol: "BTC/USDT", Signal: domain.SignalLong},
			{Symbol: "ETH/USDT", Signal: domain.SignalShort},
			{Symbol: "SOL/USDT", Signal: domain.SignalLong},
		},
		Sentiment: domain.MarketSentiment{Score: 64},
	})
	SetState(domain.StateIdle)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"screener_ticks_total":            false,
		"screener_fetch_failures_total":   false,
		"screener_tick_duration_seconds":  false,
		"screener_market_sentiment_score": false,
		"screener_active_signals":         false,
		"screener_orchestrator_state":     false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
		if mf.GetName() == "screener_market_sentiment_score" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 64 {
				t.Fatalf("sentiment gauge: got %v want 64", v)
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

func TestHandlerServesText(t *testing.T) {
	SetConsecutiveFailures(3)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "screener_consecutive_failed_ticks 3") {
		t.Fatalf("expected failure gauge in output")
	}
}
