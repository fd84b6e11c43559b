package domain

import "time"

// SignalDirection is the directional classification of a symbol.
type SignalDirection string

const (
	SignalLong    SignalDirection = "LONG"
	SignalShort   SignalDirection = "SHORT"
	SignalNeutral SignalDirection = "NEUTRAL"
)

// Active reports whether the direction is Long or Short.
func (d SignalDirection) Active() bool {
	return d == SignalLong || d == SignalShort
}

// SignalRecord anchors an active signal: the price and time at which it was
// first observed. Neutral signals never have a record.
type SignalRecord struct {
	Direction      SignalDirection `json:"direction"`
	ReferencePrice float64         `json:"reference_price"`
	ActivatedAt    time.Time       `json:"activated_at"`
}

// Expired reports whether the record is at least ttl old at now.
func (r SignalRecord) Expired(now time.Time, ttl time.Duration) bool {
	return r.Remaining(now, ttl) <= 0
}

// Remaining is how long the record stays valid at now.
func (r SignalRecord) Remaining(now time.Time, ttl time.Duration) time.Duration {
	return r.ActivatedAt.Add(ttl).Sub(now)
}

// Pattern is a categorical price/volume shape label. The empty pattern means
// no rule matched.
type Pattern string

const (
	PatternNone          Pattern = ""
	PatternBreakout      Pattern = "Breakout"
	PatternBreakdown     Pattern = "Breakdown"
	PatternStrongUp      Pattern = "Strong Up"
	PatternStrongDown    Pattern = "Strong Down"
	PatternVolumeSpike   Pattern = "Volume Spike"
	PatternBullish       Pattern = "Bullish"
	PatternBearish       Pattern = "Bearish"
	PatternConsolidation Pattern = "Consolidation"
	PatternTrendingUp    Pattern = "Trending Up"
	PatternTrendingDown  Pattern = "Trending Down"
)

// SymbolMetrics is the derived per-symbol output of one tick.
type SymbolMetrics struct {
	Symbol               string          `json:"symbol"`
	Price                float64         `json:"price"`
	PriceChangePercent   float64         `json:"price_change_percent"`
	Volume               float64         `json:"volume"`
	VolumeChangePercent  float64         `json:"volume_change_percent"`
	ATRPercent           float64         `json:"atr_percent"`
	Strength             int             `json:"strength"`
	Score                int             `json:"score"`
	Signal               SignalDirection `json:"signal"`
	SignalReferencePrice *float64        `json:"signal_reference_price,omitempty"`
	SignalActivatedAt    *time.Time      `json:"signal_activated_at,omitempty"`
	Pattern              Pattern         `json:"pattern,omitempty"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Stale                bool            `json:"stale"`
}

// Anchor returns the signal record carried by m, if any.
func (m SymbolMetrics) Anchor() (SignalRecord, bool) {
	if !m.Signal.Active() || m.SignalReferencePrice == nil || m.SignalActivatedAt == nil {
		return SignalRecord{}, false
	}
	return SignalRecord{
		Direction:      m.Signal,
		ReferencePrice: *m.SignalReferencePrice,
		ActivatedAt:    *m.SignalActivatedAt,
	}, true
}
