package screener

import (
	"math"
	"sync"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// SentimentAggregator reduces a tick's metrics into one market-wide reading.
// It remembers the last reading so an empty tick repeats it instead of
// falling back to neutral.
type SentimentAggregator struct {
	mu   sync.RWMutex
	last domain.MarketSentiment
}

// NewSentimentAggregator returns an aggregator whose initial reading is
// domain.NeutralSentiment.
func NewSentimentAggregator() *SentimentAggregator {
	return &SentimentAggregator{last: domain.NeutralSentiment()}
}

// Aggregate computes the sentiment for metrics and records it as the latest
// reading. An empty slice returns the previous reading unchanged.
func (a *SentimentAggregator) Aggregate(metrics []domain.SymbolMetrics) domain.MarketSentiment {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(metrics) == 0 {
		return a.last
	}
	a.last = ComputeSentiment(metrics)
	return a.last
}

// Last returns the most recent reading.
func (a *SentimentAggregator) Last() domain.MarketSentiment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Seed replaces the remembered reading, e.g. with a cached publication after
// a restart.
func (a *SentimentAggregator) Seed(s domain.MarketSentiment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = s
}

// ComputeSentiment is the stateless reduction behind Aggregate. It must not be
// called with an empty slice.
func ComputeSentiment(metrics []domain.SymbolMetrics) domain.MarketSentiment {
	var sumChange, sumScore float64
	var longs, shorts int
	for _, m := range metrics {
		sumChange += finite(m.PriceChangePercent)
		sumScore += float64(m.Score)
		switch m.Signal {
		case domain.SignalLong:
			longs++
		case domain.SignalShort:
			shorts++
		}
	}
	n := float64(len(metrics))
	avgChange := sumChange / n
	avgScore := sumScore / n

	bullishRatio := 0.5
	if longs+shorts > 0 {
		bullishRatio = float64(longs) / float64(longs+shorts)
	}

	raw := (avgChange*10+50)*0.4 + avgScore*0.3 + bullishRatio*100*0.3
	score := clampScore(math.Round(finite(raw)))

	trend := domain.TrendNeutral
	switch {
	case score > 50:
		trend = domain.TrendBullish
	case score < 50:
		trend = domain.TrendBearish
	}

	strength := score - 50
	if strength < 0 {
		strength = -strength
	}
	return domain.MarketSentiment{
		Score:    score,
		Label:    sentimentLabel(score),
		Trend:    trend,
		Strength: min(strength*2, 100),
	}
}
