package screener

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestFetchAllIsolatesFailures(t *testing.T) {
	src := newFakeSource()
	var symbols []string
	for i := 0; i < 15; i++ {
		sym := fmt.Sprintf("S%02d/USDT", i)
		symbols = append(symbols, sym)
		src.set(domain.RawSnapshot{Symbol: sym, Price: 10, High24h: 11, Low24h: 9, QuoteVolume: 1000})
		if i%3 == 0 {
			src.fail[sym] = true
		}
	}
	src.hang["S01/USDT"] = true

	f := NewFetcher(FetcherConfig{Source: src, RequestTimeout: 50 * time.Millisecond})
	start := time.Now()
	report := f.FetchAll(context.Background(), symbols)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("fetch took %v; hung request should be bounded by the timeout", elapsed)
	}

	if len(report.Failures) != 6 {
		t.Fatalf("failures: got %d want 6", len(report.Failures))
	}
	if len(report.Snapshots) != 9 {
		t.Fatalf("snapshots: got %d want 9", len(report.Snapshots))
	}
	for i := 1; i < len(report.Snapshots); i++ {
		if report.Snapshots[i-1].Symbol >= report.Snapshots[i].Symbol {
			t.Fatalf("snapshots out of request order: %s before %s",
				report.Snapshots[i-1].Symbol, report.Snapshots[i].Symbol)
		}
	}
	var sawTimeout bool
	for _, fl := range report.Failures {
		if errors.Is(fl.Err, context.DeadlineExceeded) {
			sawTimeout = true
		}
	}
	if !sawTimeout {
		t.Fatal("expected a deadline failure for the hung symbol")
	}
}

func TestFetchAllWithConcurrencyLimit(t *testing.T) {
	src := newFakeSource()
	symbols := []string{"A", "B", "C", "D"}
	for _, s := range symbols {
		src.set(domain.RawSnapshot{Symbol: s, Price: 1, High24h: 1, Low24h: 1, QuoteVolume: 1})
	}
	f := NewFetcher(FetcherConfig{Source: src, MaxConcurrency: 1})
	report := f.FetchAll(context.Background(), symbols)
	if len(report.Snapshots) != 4 || len(report.Failures) != 0 {
		t.Fatalf("got %d snapshots, %d failures", len(report.Snapshots), len(report.Failures))
	}
}

func TestFetchAllRejectsMalformed(t *testing.T) {
	src := newFakeSource()
	src.set(domain.RawSnapshot{Symbol: "NAN", Price: math.NaN()})
	src.set(domain.RawSnapshot{Symbol: "NEG", Price: 1, QuoteVolume: -5})
	src.set(domain.RawSnapshot{Symbol: "OK", Price: 1, High24h: 1, Low24h: 1, QuoteVolume: 5})

	report := NewFetcher(FetcherConfig{Source: src}).FetchAll(context.Background(), []string{"NAN", "NEG", "OK"})
	if len(report.Snapshots) != 1 || report.Snapshots[0].Symbol != "OK" {
		t.Fatalf("got %+v", report.Snapshots)
	}
	for _, fl := range report.Failures {
		if !errors.Is(fl.Err, domain.ErrMalformedSnapshot) {
			t.Fatalf("%s: expected malformed error, got %v", fl.Symbol, fl.Err)
		}
	}
	if got := report.FailedSymbols(); len(got) != 2 || got[0] != "NAN" || got[1] != "NEG" {
		t.Fatalf("failed symbols: %v", got)
	}
}
