package screener

import (
	"math"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

const (
	// DefaultMinHistory is the sample count below which volume change is 0.
	DefaultMinHistory = 20
	// DefaultSignalTTL is how long a signal keeps its activation anchor.
	DefaultSignalTTL = 24 * time.Hour

	// averageWindow is the number of samples averaged at each end of the
	// volume window.
	averageWindow = 10
)

// MetricsParams tunes the metrics computation.
type MetricsParams struct {
	MinHistory int
	SignalTTL  time.Duration
}

// DefaultMetricsParams returns the stock parameters.
func DefaultMetricsParams() MetricsParams {
	return MetricsParams{MinHistory: DefaultMinHistory, SignalTTL: DefaultSignalTTL}
}

// MetricsInput is everything ComputeMetrics needs for one symbol.
type MetricsInput struct {
	Snapshot domain.RawSnapshot
	// History is the symbol's volume window including this tick's sample.
	History []float64
	// Existing is the symbol's current ledger record, nil when absent.
	Existing *domain.SignalRecord
	Now      time.Time
}

// MetricsResult is the derived metrics plus the ledger record to persist.
// Record is nil when the ledger entry must be cleared.
type MetricsResult struct {
	Metrics domain.SymbolMetrics
	Record  *domain.SignalRecord
}

// ComputeMetrics derives SymbolMetrics from a snapshot and its history and
// resolves the signal persistence policy. It is total over finite input:
// degenerate arithmetic resolves to 0 instead of NaN or Inf.
func ComputeMetrics(in MetricsInput, p MetricsParams) MetricsResult {
	snap := in.Snapshot
	pc := finite(snap.PriceChangePercent)
	vc := VolumeChange(in.History, p.MinHistory)
	atr := ATRPercent(snap.High24h, snap.Low24h, snap.Price)

	m := domain.SymbolMetrics{
		Symbol:              snap.Symbol,
		Price:               finite(snap.Price),
		PriceChangePercent:  pc,
		Volume:              finite(snap.QuoteVolume),
		VolumeChangePercent: vc,
		ATRPercent:          atr,
		Strength:            Strength(vc, pc),
		Score:               Score(pc, vc),
		Pattern:             Pattern(snap, pc, vc),
		UpdatedAt:           in.Now,
	}

	rec := ResolveSignal(in.Existing, candidateSignal(pc, vc), m.Price, in.Now, p.SignalTTL)
	if rec == nil {
		m.Signal = domain.SignalNeutral
		return MetricsResult{Metrics: m}
	}
	price, at := rec.ReferencePrice, rec.ActivatedAt
	m.Signal = rec.Direction
	m.SignalReferencePrice = &price
	m.SignalActivatedAt = &at
	return MetricsResult{Metrics: m, Record: rec}
}

// VolumeChange compares the mean of the newest samples with the mean of the
// oldest samples in the current window, as a percentage. Windows shorter than
// minHistory yield 0.
func VolumeChange(history []float64, minHistory int) float64 {
	if minHistory < averageWindow {
		minHistory = averageWindow
	}
	if len(history) < minHistory {
		return 0
	}
	oldAvg := mean(history[:averageWindow])
	recentAvg := mean(history[len(history)-averageWindow:])
	if oldAvg <= 0 {
		return 0
	}
	return finite((recentAvg - oldAvg) / oldAvg * 100)
}

// ATRPercent is the single-bar range proxy (high-low)/price*100.
func ATRPercent(high, low, price float64) float64 {
	if price == 0 {
		return 0
	}
	return finite((high - low) / price * 100)
}

// Strength combines volume and price movement into a 0-100 magnitude.
func Strength(volumeChange, priceChange float64) int {
	v := math.Min(volumeChange/2, 30) + math.Min(math.Abs(priceChange)*5, 40)
	return clampScore(math.Round(finite(v)))
}

// Score is the composite 0-100 rating: base 50 adjusted by one price tier and
// one volume tier.
func Score(priceChange, volumeChange float64) int {
	s := 50 + applyTier(priceTiers, priceChange) + applyTier(volumeTiers, volumeChange)
	return clampScore(float64(s))
}

// Pattern classifies the snapshot's price/volume shape.
func Pattern(snap domain.RawSnapshot, priceChange, volumeChange float64) domain.Pattern {
	s := shape{priceChange: priceChange, volumeChange: volumeChange}
	priceRange := snap.High24h - snap.Low24h
	if snap.Price != 0 {
		s.priceRangePercent = finite(priceRange / snap.Price * 100)
	}
	if priceRange != 0 {
		pos := (snap.Price - snap.Low24h) / priceRange
		s.closeNearHigh = pos > 0.75
		s.closeNearLow = pos < 0.25
	}
	return classifyPattern(s)
}

// ResolveSignal applies the persistence policy to a candidate direction. It
// returns nil for Neutral. A live record with the same direction keeps its
// anchor; anything else gets a fresh anchor at (price, now).
func ResolveSignal(existing *domain.SignalRecord, candidate domain.SignalDirection, price float64, now time.Time, ttl time.Duration) *domain.SignalRecord {
	if !candidate.Active() {
		return nil
	}
	if existing != nil && existing.Direction == candidate && !existing.Expired(now, ttl) {
		rec := *existing
		return &rec
	}
	return &domain.SignalRecord{
		Direction:      candidate,
		ReferencePrice: price,
		ActivatedAt:    now,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func abs(x float64) float64 { return math.Abs(x) }

func clampScore(x float64) int {
	switch {
	case x < 0:
		return 0
	case x > 100:
		return 100
	}
	return int(x)
}
