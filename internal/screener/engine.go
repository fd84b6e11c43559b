package screener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Symbols     []string
	HistorySize int
	MinHistory  int
	SignalTTL   time.Duration
	Fetcher     *Fetcher
	Logger      *slog.Logger
	// Now overrides the wall clock, mainly for tests.
	Now func() time.Time
}

// Engine owns the per-symbol state (volume history and signal ledger) and
// turns fetched snapshots into a publication. Compute calls are serialized so
// ticks never overlap.
type Engine struct {
	symbols   []string
	params    MetricsParams
	fetcher   *Fetcher
	history   *VolumeHistory
	ledger    *Ledger
	sentiment *SentimentAggregator
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// NewEngine creates an engine with empty state.
func NewEngine(cfg EngineConfig) *Engine {
	params := DefaultMetricsParams()
	if cfg.MinHistory > 0 {
		params.MinHistory = cfg.MinHistory
	}
	if cfg.SignalTTL > 0 {
		params.SignalTTL = cfg.SignalTTL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	syms := make([]string, len(cfg.Symbols))
	copy(syms, cfg.Symbols)
	return &Engine{
		symbols:   syms,
		params:    params,
		fetcher:   cfg.Fetcher,
		history:   NewVolumeHistory(cfg.HistorySize),
		ledger:    NewLedger(),
		sentiment: NewSentimentAggregator(),
		now:       now,
		logger:    logger.With(slog.String("component", "screener_engine")),
	}
}

// Ledger exposes the signal ledger for restore and inspection.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Sentiment exposes the sentiment aggregator so a restart can seed it.
func (e *Engine) Sentiment() *SentimentAggregator { return e.sentiment }

// Fetch runs the fetch phase for the whole universe.
func (e *Engine) Fetch(ctx context.Context) FetchReport {
	if e.fetcher == nil {
		return FetchReport{}
	}
	return e.fetcher.FetchAll(ctx, e.symbols)
}

// Compute runs the metrics computation for every snapshot, then aggregates
// sentiment. Each symbol's history append and ledger write are committed only
// after its metrics are computed, and cancellation is honoured between
// symbols, so an aborted compute leaves every symbol either fully updated or
// untouched. An empty snapshot list returns ErrNoSnapshots and mutates
// nothing.
func (e *Engine) Compute(ctx context.Context, snaps []domain.RawSnapshot) ([]domain.SymbolMetrics, domain.MarketSentiment, error) {
	if len(snaps) == 0 {
		return nil, e.sentiment.Aggregate(nil), domain.ErrNoSnapshots
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	out := make([]domain.SymbolMetrics, 0, len(snaps))
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return nil, e.sentiment.Last(), fmt.Errorf("screener: compute: %w", err)
		}
		out = append(out, e.computeSymbol(snap, now))
	}
	return out, e.sentiment.Aggregate(out), nil
}

func (e *Engine) computeSymbol(snap domain.RawSnapshot, now time.Time) domain.SymbolMetrics {
	in := MetricsInput{
		Snapshot: snap,
		History:  e.history.Peek(snap.Symbol, snap.QuoteVolume),
		Now:      now,
	}
	if rec, ok := e.ledger.Get(snap.Symbol); ok {
		in.Existing = &rec
	}
	res := ComputeMetrics(in, e.params)

	e.history.Append(snap.Symbol, snap.QuoteVolume)
	if res.Record == nil {
		e.ledger.Clear(snap.Symbol)
	} else {
		e.ledger.Set(snap.Symbol, *res.Record)
	}
	return res.Metrics
}
