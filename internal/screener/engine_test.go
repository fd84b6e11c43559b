package screener

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func newTestEngine(t *testing.T, src *fakeSource, clock *fakeClock, symbols []string) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{
		Symbols: symbols,
		Fetcher: NewFetcher(FetcherConfig{Source: src, RequestTimeout: 100 * time.Millisecond}),
		Now:     clock.Now,
	})
}

// runTick drives one fetch and compute cycle the way the orchestrator does.
func runTick(t *testing.T, e *Engine, tickID string) (domain.Publication, error) {
	t.Helper()
	ctx := context.Background()
	report := e.Fetch(ctx)
	pub := domain.Publication{TickID: tickID, FailedSymbols: report.FailedSymbols()}
	rows, sentiment, err := e.Compute(ctx, report.Snapshots)
	pub.Sentiment = sentiment
	if err != nil {
		return pub, err
	}
	pub.Metrics = rows
	return pub, nil
}

func TestTickPartialFailure(t *testing.T) {
	src := newFakeSource()
	var symbols []string
	for i := 0; i < 15; i++ {
		sym := fmt.Sprintf("C%02d/USDT", i)
		symbols = append(symbols, sym)
		src.set(domain.RawSnapshot{Symbol: sym, Price: 100, High24h: 110, Low24h: 90, QuoteVolume: 1e6, PriceChangePercent: float64(i%5) - 2})
		if i < 5 {
			src.fail[sym] = true
		}
	}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, src, clock, symbols)

	pub, err := runTick(t, e, "tick-1")
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(pub.Metrics) != 10 {
		t.Fatalf("metrics: got %d want 10", len(pub.Metrics))
	}
	if len(pub.FailedSymbols) != 5 {
		t.Fatalf("failed: got %d want 5", len(pub.FailedSymbols))
	}
	if pub.Sentiment.Label == "" || pub.Sentiment.Score < 0 || pub.Sentiment.Score > 100 {
		t.Fatalf("invalid sentiment %+v", pub.Sentiment)
	}
	if e.history.Len(symbols[0]) != 0 {
		t.Fatal("failed symbol must not gain history")
	}
	if e.history.Len(symbols[5]) != 1 {
		t.Fatal("fetched symbol should have one sample")
	}
}

func TestTickAllFailedKeepsState(t *testing.T) {
	src := newFakeSource()
	src.set(domain.RawSnapshot{Symbol: "BTC/USDT", Price: 100, High24h: 105, Low24h: 95, QuoteVolume: 1e6, PriceChangePercent: 4})
	clock := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, src, clock, []string{"BTC/USDT"})

	first, err := runTick(t, e, "t1")
	if err != nil {
		t.Fatalf("first tick: %v", err)
	}
	rec, ok := e.Ledger().Get("BTC/USDT")
	if !ok {
		t.Fatal("expected active signal after first tick")
	}

	src.fail["BTC/USDT"] = true
	clock.Advance(10 * time.Second)
	pub, err := runTick(t, e, "t2")
	if !errors.Is(err, domain.ErrNoSnapshots) {
		t.Fatalf("expected ErrNoSnapshots, got %v", err)
	}
	if pub.Sentiment != first.Sentiment {
		t.Fatalf("sentiment changed on failed tick: %+v -> %+v", first.Sentiment, pub.Sentiment)
	}
	if len(pub.FailedSymbols) != 1 {
		t.Fatalf("failed symbols: %v", pub.FailedSymbols)
	}
	if got, _ := e.Ledger().Get("BTC/USDT"); got != rec {
		t.Fatalf("ledger mutated on failed tick")
	}
	if e.history.Len("BTC/USDT") != 1 {
		t.Fatalf("history mutated on failed tick")
	}
}

func TestSignalAnchorAcrossTicks(t *testing.T) {
	src := newFakeSource()
	sym := "ETH/USDT"
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	e := newTestEngine(t, src, clock, []string{sym})

	src.set(domain.RawSnapshot{Symbol: sym, Price: 3000, High24h: 3100, Low24h: 2900, QuoteVolume: 1e6, PriceChangePercent: 3.5})
	pub, err := runTick(t, e, "a")
	if err != nil {
		t.Fatal(err)
	}
	m := pub.Metrics[0]
	if m.Signal != domain.SignalLong || *m.SignalReferencePrice != 3000 || !m.SignalActivatedAt.Equal(t0) {
		t.Fatalf("unexpected first anchor %+v", m)
	}

	// Still long an hour later at a different price: anchor frozen.
	clock.Advance(time.Hour)
	src.set(domain.RawSnapshot{Symbol: sym, Price: 3090, High24h: 3100, Low24h: 2900, QuoteVolume: 1e6, PriceChangePercent: 3.8})
	pub, _ = runTick(t, e, "b")
	m = pub.Metrics[0]
	if *m.SignalReferencePrice != 3000 || !m.SignalActivatedAt.Equal(t0) {
		t.Fatalf("anchor moved: %v @ %v", *m.SignalReferencePrice, *m.SignalActivatedAt)
	}

	// Past the validity window: fresh anchor.
	clock.Advance(24 * time.Hour)
	t2 := clock.Now()
	pub, _ = runTick(t, e, "c")
	m = pub.Metrics[0]
	if *m.SignalReferencePrice != 3090 || !m.SignalActivatedAt.Equal(t2) {
		t.Fatalf("expected re-anchor at 3090 @ %v, got %v @ %v", t2, *m.SignalReferencePrice, *m.SignalActivatedAt)
	}

	// Neutral clears the ledger.
	src.set(domain.RawSnapshot{Symbol: sym, Price: 3090, High24h: 3100, Low24h: 2900, QuoteVolume: 1e6, PriceChangePercent: 0.1})
	pub, _ = runTick(t, e, "d")
	if pub.Metrics[0].Signal != domain.SignalNeutral || pub.Metrics[0].SignalReferencePrice != nil {
		t.Fatalf("expected neutral, got %+v", pub.Metrics[0])
	}
	if _, ok := e.Ledger().Get(sym); ok {
		t.Fatal("ledger record should be cleared")
	}
}

func TestComputeCancelledLeavesStateUntouched(t *testing.T) {
	e := NewEngine(EngineConfig{Symbols: []string{"A", "B"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.Compute(ctx, []domain.RawSnapshot{
		{Symbol: "A", Price: 1, PriceChangePercent: 5},
		{Symbol: "B", Price: 1, PriceChangePercent: 5},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if e.history.Len("A") != 0 || e.history.Len("B") != 0 {
		t.Fatal("history written despite cancellation")
	}
	if len(e.Ledger().Snapshot()) != 0 {
		t.Fatal("ledger written despite cancellation")
	}
}

func TestSeededSentimentSurvivesEmptyTick(t *testing.T) {
	e := NewEngine(EngineConfig{Symbols: []string{"A"}})
	cached := domain.MarketSentiment{Score: 72, Label: "Bullish", Trend: domain.TrendBullish, Strength: 44}
	e.Sentiment().Seed(cached)

	_, got, err := e.Compute(context.Background(), nil)
	if !errors.Is(err, domain.ErrNoSnapshots) {
		t.Fatalf("expected ErrNoSnapshots, got %v", err)
	}
	if got != cached {
		t.Fatalf("sentiment = %+v, want seeded %+v", got, cached)
	}
}
