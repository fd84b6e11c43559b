package screener

import "github.com/alanyoungcy/cryptoscreener/internal/domain"

// Every classification below is an ordered table evaluated top to bottom; the
// first matching row wins.

type tier struct {
	match func(v float64) bool
	delta int
}

// Price-change tiers. At most one row applies.
var priceTiers = []tier{
	{func(pc float64) bool { return pc > 2 }, 15},
	{func(pc float64) bool { return pc > 1 }, 10},
	{func(pc float64) bool { return pc > 0 }, 5},
	{func(pc float64) bool { return pc < -2 }, -15},
	{func(pc float64) bool { return pc < -1 }, -10},
	{func(pc float64) bool { return pc < 0 }, -5},
}

// Volume-change bonus tiers. At most one row applies.
var volumeTiers = []tier{
	{func(vc float64) bool { return vc > 50 }, 20},
	{func(vc float64) bool { return vc > 20 }, 10},
	{func(vc float64) bool { return vc > 10 }, 5},
}

func applyTier(tiers []tier, v float64) int {
	for _, t := range tiers {
		if t.match(v) {
			return t.delta
		}
	}
	return 0
}

type signalRule struct {
	match     func(pc, vc float64) bool
	direction domain.SignalDirection
}

// Long rows precede Short rows.
var signalRules = []signalRule{
	{func(pc, vc float64) bool { return (pc > 1.5 && vc > 10) || pc > 3 }, domain.SignalLong},
	{func(pc, _ float64) bool { return pc > 0.5 }, domain.SignalLong},
	{func(pc, vc float64) bool { return (pc < -1.5 && vc > 10) || pc < -3 }, domain.SignalShort},
	{func(pc, _ float64) bool { return pc < -0.5 }, domain.SignalShort},
}

// candidateSignal classifies direction from price and volume change alone,
// before the persistence policy is applied.
func candidateSignal(priceChange, volumeChange float64) domain.SignalDirection {
	for _, r := range signalRules {
		if r.match(priceChange, volumeChange) {
			return r.direction
		}
	}
	return domain.SignalNeutral
}

// shape is the price/volume geometry the pattern rules inspect.
type shape struct {
	priceChange       float64
	volumeChange      float64
	priceRangePercent float64
	closeNearHigh     bool
	closeNearLow      bool
}

type patternRule struct {
	pattern domain.Pattern
	match   func(s shape) bool
}

var patternRules = []patternRule{
	{domain.PatternBreakout, func(s shape) bool {
		return s.closeNearHigh && (s.volumeChange > 15 || s.priceChange > 1.5)
	}},
	{domain.PatternBreakdown, func(s shape) bool {
		return s.closeNearLow && (s.volumeChange > 15 || s.priceChange < -1.5)
	}},
	{domain.PatternStrongUp, func(s shape) bool { return s.priceChange > 2.5 }},
	{domain.PatternStrongDown, func(s shape) bool { return s.priceChange < -2.5 }},
	{domain.PatternVolumeSpike, func(s shape) bool {
		return s.volumeChange > 50 && abs(s.priceChange) < 3
	}},
	{domain.PatternBullish, func(s shape) bool { return s.priceChange > 1 && s.volumeChange > 10 }},
	{domain.PatternBearish, func(s shape) bool { return s.priceChange < -1 && s.volumeChange > 10 }},
	{domain.PatternConsolidation, func(s shape) bool {
		return s.priceRangePercent < 2.5 && abs(s.priceChange) < 0.8
	}},
	{domain.PatternTrendingUp, func(s shape) bool { return s.priceChange > 0.5 }},
	{domain.PatternTrendingDown, func(s shape) bool { return s.priceChange < -0.5 }},
}

func classifyPattern(s shape) domain.Pattern {
	for _, r := range patternRules {
		if r.match(s) {
			return r.pattern
		}
	}
	return domain.PatternNone
}

type sentimentBand struct {
	min   int
	label string
}

// Bands are keyed by their inclusive lower bound, highest first.
var sentimentBands = []sentimentBand{
	{80, "Extremely Bullish"},
	{65, "Bullish"},
	{51, "Slightly Bullish"},
	{50, "Neutral"},
	{36, "Slightly Bearish"},
	{21, "Bearish"},
	{0, "Extremely Bearish"},
}

func sentimentLabel(score int) string {
	for _, b := range sentimentBands {
		if score >= b.min {
			return b.label
		}
	}
	return sentimentBands[len(sentimentBands)-1].label
}
