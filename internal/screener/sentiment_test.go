package screener

import (
	"testing"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestComputeSentiment(t *testing.T) {
	metrics := []domain.SymbolMetrics{
		{PriceChangePercent: 2, Score: 70, Signal: domain.SignalLong},
		{PriceChangePercent: 1, Score: 60, Signal: domain.SignalLong},
		{PriceChangePercent: 0, Score: 50, Signal: domain.SignalNeutral},
	}
	// avgChange=1, avgScore=60, ratio=1 -> (60*0.4)+(18)+(30) = 72
	s := ComputeSentiment(metrics)
	if s.Score != 72 {
		t.Fatalf("score: got %d want 72", s.Score)
	}
	if s.Label != "Bullish" || s.Trend != domain.TrendBullish {
		t.Fatalf("label/trend: got %s/%s", s.Label, s.Trend)
	}
	if s.Strength != 44 {
		t.Fatalf("strength: got %d want 44", s.Strength)
	}
}

func TestComputeSentimentNoSignalsUsesEvenRatio(t *testing.T) {
	s := ComputeSentiment([]domain.SymbolMetrics{{PriceChangePercent: 0, Score: 50}})
	// (50*0.4)+(15)+(15) = 50
	if s.Score != 50 || s.Label != "Neutral" || s.Trend != domain.TrendNeutral || s.Strength != 0 {
		t.Fatalf("got %+v", s)
	}
}

func TestComputeSentimentClamps(t *testing.T) {
	s := ComputeSentiment([]domain.SymbolMetrics{{PriceChangePercent: -40, Score: 0, Signal: domain.SignalShort}})
	if s.Score != 0 || s.Label != "Extremely Bearish" || s.Strength != 100 {
		t.Fatalf("got %+v", s)
	}
	s = ComputeSentiment([]domain.SymbolMetrics{{PriceChangePercent: 40, Score: 100, Signal: domain.SignalLong}})
	if s.Score != 100 || s.Label != "Extremely Bullish" || s.Strength != 100 {
		t.Fatalf("got %+v", s)
	}
}

func TestSentimentLabelBands(t *testing.T) {
	tests := map[int]string{
		100: "Extremely Bullish", 80: "Extremely Bullish",
		79: "Bullish", 65: "Bullish",
		64: "Slightly Bullish", 51: "Slightly Bullish",
		50: "Neutral",
		49: "Slightly Bearish", 36: "Slightly Bearish",
		35: "Bearish", 21: "Bearish",
		20: "Extremely Bearish", 0: "Extremely Bearish",
	}
	for score, want := range tests {
		if got := sentimentLabel(score); got != want {
			t.Errorf("sentimentLabel(%d) = %q, want %q", score, got, want)
		}
	}
}

func TestAggregatorKeepsPreviousOnEmpty(t *testing.T) {
	a := NewSentimentAggregator()
	if got := a.Aggregate(nil); got != domain.NeutralSentiment() {
		t.Fatalf("initial: got %+v", got)
	}
	first := a.Aggregate([]domain.SymbolMetrics{{PriceChangePercent: 3, Score: 80, Signal: domain.SignalLong}})
	if first.Trend != domain.TrendBullish {
		t.Fatalf("expected bullish, got %+v", first)
	}
	if got := a.Aggregate(nil); got != first {
		t.Fatalf("empty tick changed sentiment: %+v -> %+v", first, got)
	}
}
