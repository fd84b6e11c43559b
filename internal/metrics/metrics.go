// Package metrics exposes Prometheus collectors for the screener engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_ticks_total", Help: "Screener ticks by result"},
		[]string{"result"},
	)
	FetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_fetch_failures_total", Help: "Per-symbol snapshot fetch failures"},
		[]string{"symbol"},
	)
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screener_tick_duration_seconds",
			Help:    "Wall time of one fetch and compute cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	SentimentScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "screener_market_sentiment_score", Help: "Latest market sentiment score (0-100)"},
	)
	ActiveSignals = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "screener_active_signals", Help: "Symbols with an active signal by direction"},
		[]string{"direction"},
	)
	OrchestratorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "screener_orchestrator_state", Help: "1 for the current tick loop state"},
		[]string{"state"},
	)
	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "screener_consecutive_failed_ticks", Help: "Failed ticks since the last publication"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		FetchFailuresTotal,
		TickDuration,
		SentimentScore,
		ActiveSignals,
		OrchestratorState,
		ConsecutiveFailures,
	)
}

var states = []domain.OrchestratorState{
	domain.StateIdle,
	domain.StateFetching,
	domain.StateComputing,
	domain.StatePublished,
}

// SetState marks s as the current orchestrator state.
func SetState(s domain.OrchestratorState) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		OrchestratorState.WithLabelValues(string(st)).Set(v)
	}
}

// ObserveTick records the outcome of a tick.
func ObserveTick(ev domain.TickEvent, failedSymbols []string) {
	TicksTotal.WithLabelValues(string(ev.Result)).Inc()
	TickDuration.Observe(ev.Duration.Seconds())
	for _, sym := range failedSymbols {
		FetchFailuresTotal.WithLabelValues(sym).Inc()
	}
}

// ObservePublication updates the gauges derived from a publication.
func ObservePublication(pub domain.Publication) {
	SentimentScore.Set(float64(pub.Sentiment.Score))
	var longs, shorts int
	for _, m := range pub.Metrics {
		switch m.Signal {
		case domain.SignalLong:
			longs++
		case domain.SignalShort:
			shorts++
		}
	}
	ActiveSignals.WithLabelValues(string(domain.SignalLong)).Set(float64(longs))
	ActiveSignals.WithLabelValues(string(domain.SignalShort)).Set(float64(shorts))
}

// SetConsecutiveFailures publishes the current failure streak.
func SetConsecutiveFailures(n int) {
	ConsecutiveFailures.Set(float64(n))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone metrics listener on addr at path. It is used
// when the HTTP API is disabled.
func Serve(addr, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
