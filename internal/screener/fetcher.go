package screener

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// DefaultRequestTimeout bounds each per-symbol fetch.
const DefaultRequestTimeout = 5 * time.Second

// FetchFailure records why one symbol produced no snapshot this tick.
type FetchFailure struct {
	Symbol string
	Err    error
}

// FetchReport is the settled result of one fetch round. Snapshots keep the
// order of the requested symbols, skipping failures.
type FetchReport struct {
	Snapshots []domain.RawSnapshot
	Failures  []FetchFailure
}

// FailedSymbols lists the symbols that failed, in request order.
func (r FetchReport) FailedSymbols() []string {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Symbol
	}
	return out
}

// Fetcher pulls one snapshot per symbol concurrently. Every fetch settles on
// its own: an error or timeout for one symbol never cancels its siblings.
type Fetcher struct {
	source         domain.TickerSource
	requestTimeout time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Source         domain.TickerSource
	RequestTimeout time.Duration
	// MaxConcurrency caps in-flight requests; 0 means one per symbol.
	MaxConcurrency int
	Logger         *slog.Logger
}

// NewFetcher creates a fetcher over the given source.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		source:         cfg.Source,
		requestTimeout: cfg.RequestTimeout,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger.With(slog.String("component", "snapshot_fetcher")),
	}
}

// FetchAll issues one request per symbol and waits for all of them to
// settle.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) FetchReport {
	snaps := make([]domain.RawSnapshot, len(symbols))
	errs := make([]error, len(symbols))

	// A plain group, not WithContext: no worker returns an error, so one
	// failing symbol can never cancel the rest.
	var g errgroup.Group
	if f.maxConcurrency > 0 {
		g.SetLimit(f.maxConcurrency)
	}
	for i, sym := range symbols {
		g.Go(func() error {
			snaps[i], errs[i] = f.fetchOne(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	var report FetchReport
	for i, sym := range symbols {
		if errs[i] != nil {
			f.logger.Warn("fetch failed",
				slog.String("symbol", sym),
				slog.String("error", errs[i].Error()),
			)
			report.Failures = append(report.Failures, FetchFailure{Symbol: sym, Err: errs[i]})
			continue
		}
		report.Snapshots = append(report.Snapshots, snaps[i])
	}
	return report
}

func (f *Fetcher) fetchOne(ctx context.Context, symbol string) (domain.RawSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawSnapshot{}, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	snap, err := f.source.FetchTicker(reqCtx, symbol)
	if err != nil {
		return domain.RawSnapshot{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	snap.Symbol = symbol
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	if err := ValidateSnapshot(snap); err != nil {
		return domain.RawSnapshot{}, err
	}
	return snap, nil
}

// ValidateSnapshot rejects snapshots carrying non-finite or negative
// numbers.
func ValidateSnapshot(s domain.RawSnapshot) error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"price", s.Price},
		{"high", s.High24h},
		{"low", s.Low24h},
		{"quote_volume", s.QuoteVolume},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) || v.val < 0 {
			return fmt.Errorf("%s: %s=%v: %w", s.Symbol, v.name, v.val, domain.ErrMalformedSnapshot)
		}
	}
	if math.IsNaN(s.PriceChangePercent) || math.IsInf(s.PriceChangePercent, 0) {
		return fmt.Errorf("%s: price_change_percent: %w", s.Symbol, domain.ErrMalformedSnapshot)
	}
	return nil
}
