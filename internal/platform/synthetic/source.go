// Package synthetic provides an offline ticker source that random-walks each
// symbol from a seed derived from its name.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

type walk struct {
	rng    *rand.Rand
	open   float64
	price  float64
	high   float64
	low    float64
	volume float64
}

// Source is a deterministic random-walk TickerSource.
type Source struct {
	mu    sync.Mutex
	walks map[string]*walk
	// Volatility is the per-step standard deviation as a fraction of price.
	volatility float64
}

var _ domain.TickerSource = (*Source)(nil)

// New returns a source with the given per-step volatility (e.g. 0.004).
func New(volatility float64) *Source {
	if volatility <= 0 {
		volatility = 0.004
	}
	return &Source{walks: make(map[string]*walk), volatility: volatility}
}

// Name identifies the provider in logs and metrics.
func (s *Source) Name() string { return "synthetic" }

// FetchTicker advances the symbol's walk by one step.
func (s *Source) FetchTicker(ctx context.Context, symbol string) (domain.RawSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.walks[symbol]
	if !ok {
		w = newWalk(symbol)
		s.walks[symbol] = w
	}
	w.step(s.volatility)

	return domain.RawSnapshot{
		Symbol:             symbol,
		Price:              w.price,
		High24h:            w.high,
		Low24h:             w.low,
		QuoteVolume:        w.volume,
		PriceChangePercent: (w.price - w.open) / w.open * 100,
		FetchedAt:          time.Now().UTC(),
	}, nil
}

func newWalk(symbol string) *walk {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	price := math.Pow(10, 1+rng.Float64()*3)
	return &walk{
		rng:    rng,
		open:   price,
		price:  price,
		high:   price,
		low:    price,
		volume: 1e6 + rng.Float64()*9e6,
	}
}

func (w *walk) step(vol float64) {
	w.price *= 1 + w.rng.NormFloat64()*vol
	if w.price <= 0 {
		w.price = w.open
	}
	w.high = math.Max(w.high, w.price)
	w.low = math.Min(w.low, w.price)
	w.volume *= 1 + w.rng.NormFloat64()*0.05
	if w.volume < 0 {
		w.volume = -w.volume
	}
}
