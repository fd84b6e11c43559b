package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/metrics"
	"github.com/alanyoungcy/cryptoscreener/internal/screener"
)

const (
	// DefaultPollInterval is the cadence between tick starts.
	DefaultPollInterval = 10 * time.Second

	tickLockKey     = "screener:tick"
	degradedMessage = "data temporarily unavailable, retrying"
)

// TickEngine is the two-phase engine the orchestrator drives.
type TickEngine interface {
	Fetch(ctx context.Context) screener.FetchReport
	Compute(ctx context.Context, snaps []domain.RawSnapshot) ([]domain.SymbolMetrics, domain.MarketSentiment, error)
}

// Publisher receives the outcome of every tick.
type Publisher interface {
	// Publish is called after a tick produced metrics.
	Publish(ctx context.Context, pub domain.Publication, ev domain.TickEvent) error
	// TickFailed is called after a tick produced no snapshots. status
	// carries the degraded flag consumers should surface.
	TickFailed(ctx context.Context, ev domain.TickEvent, status domain.FeedStatus) error
}

// Orchestrator is the screener tick loop. It moves through
// Idle -> Fetching -> Computing -> Published -> Idle on every tick, or
// Fetching -> Idle when no symbol could be fetched. Ticks never overlap.
type Orchestrator struct {
	engine     TickEngine
	publisher  Publisher
	lock       domain.LockManager
	lockTTL    time.Duration
	interval   time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	now        func() time.Time

	tickMu sync.Mutex
	mu     sync.RWMutex
	status domain.FeedStatus
}

// OrchestratorConfig configures the orchestrator.
type OrchestratorConfig struct {
	Engine    TickEngine
	Publisher Publisher
	// Lock, when set, is taken around each tick so that only one process in
	// a deployment runs a given tick.
	Lock domain.LockManager
	// LockTTL is how long the tick lock is held before it lapses. It must
	// outlast the slowest tick; see TickLockTTL. Defaults to PollInterval.
	LockTTL      time.Duration
	PollInterval time.Duration
	// MaxBackoff caps the delay after consecutive failed ticks. Values not
	// above PollInterval keep a fixed cadence.
	MaxBackoff time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewOrchestrator creates a new Orchestrator in the Idle state.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.PollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		engine:     cfg.Engine,
		publisher:  cfg.Publisher,
		lock:       cfg.Lock,
		lockTTL:    cfg.LockTTL,
		interval:   cfg.PollInterval,
		maxBackoff: cfg.MaxBackoff,
		logger:     logger.With(slog.String("component", "orchestrator")),
		now:        cfg.Now,
	}
	o.status.State = domain.StateIdle
	metrics.SetState(domain.StateIdle)
	return o
}

// Status returns a snapshot of the feed status.
func (o *Orchestrator) Status() domain.FeedStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Run ticks immediately and then on the configured cadence until ctx is
// cancelled. A slow tick delays the next one; there is no catch-up.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Duration("poll_interval", o.interval),
		slog.Duration("max_backoff", o.maxBackoff),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return ctx.Err()
		case <-timer.C:
			if err := o.RunTick(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("tick failed", slog.String("error", err.Error()))
			}
			delay := o.nextDelay()
			o.mu.Lock()
			o.status.NextTickAt = o.now().Add(delay)
			o.mu.Unlock()
			timer.Reset(delay)
		}
	}
}

// RunTick executes exactly one tick. It returns an error wrapping
// domain.ErrNoSnapshots when every fetch failed.
func (o *Orchestrator) RunTick(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	if o.lock != nil {
		unlock, err := o.lock.Acquire(ctx, tickLockKey, o.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Debug("tick lock held elsewhere, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: acquire tick lock: %w", err)
		}
		defer unlock()
	}

	tickID := uuid.NewString()
	start := o.now()
	o.setState(domain.StateFetching)
	report := o.engine.Fetch(ctx)

	if len(report.Snapshots) == 0 {
		return o.fail(ctx, tickID, start, report, domain.ErrNoSnapshots)
	}

	o.setState(domain.StateComputing)
	rows, sentiment, err := o.engine.Compute(ctx, report.Snapshots)
	if err != nil {
		o.setState(domain.StateIdle)
		return fmt.Errorf("pipeline: tick %s: %w", tickID, err)
	}

	now := o.now()
	pub := domain.Publication{
		TickID:        tickID,
		Metrics:       rows,
		Sentiment:     sentiment,
		FailedSymbols: report.FailedSymbols(),
		PublishedAt:   now,
	}
	ev := domain.TickEvent{
		TickID:        tickID,
		Result:        domain.TickPublished,
		Succeeded:     len(rows),
		Failed:        len(report.Failures),
		FailedSymbols: pub.FailedSymbols,
		Duration:      now.Sub(start),
		At:            now,
	}

	o.mu.Lock()
	o.status.State = domain.StatePublished
	o.status.Degraded = false
	o.status.Message = ""
	o.status.ConsecutiveFailures = 0
	o.status.LastTickID = tickID
	o.status.LastTickAt = now
	o.status.LastPublishedAt = now
	o.mu.Unlock()
	metrics.SetState(domain.StatePublished)
	metrics.ObserveTick(ev, ev.FailedSymbols)
	metrics.ObservePublication(pub)
	metrics.SetConsecutiveFailures(0)

	o.logger.Info("tick published",
		slog.String("tick_id", tickID),
		slog.Int("symbols", len(rows)),
		slog.Int("failed", len(report.Failures)),
		slog.String("sentiment", sentiment.Label),
		slog.Duration("duration", ev.Duration),
	)

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, pub, ev); err != nil {
			o.logger.Warn("publish failed", slog.String("tick_id", tickID), slog.String("error", err.Error()))
		}
	}
	o.setState(domain.StateIdle)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, tickID string, start time.Time, report screener.FetchReport, cause error) error {
	now := o.now()
	ev := domain.TickEvent{
		TickID:        tickID,
		Result:        domain.TickFailed,
		Failed:        len(report.Failures),
		FailedSymbols: report.FailedSymbols(),
		Duration:      now.Sub(start),
		Error:         cause.Error(),
		At:            now,
	}

	o.mu.Lock()
	o.status.State = domain.StateIdle
	o.status.Degraded = true
	o.status.Message = degradedMessage
	o.status.ConsecutiveFailures++
	o.status.LastTickID = tickID
	o.status.LastTickAt = now
	status := o.status
	o.mu.Unlock()
	metrics.SetState(domain.StateIdle)
	metrics.ObserveTick(ev, ev.FailedSymbols)
	metrics.SetConsecutiveFailures(status.ConsecutiveFailures)

	if o.publisher != nil {
		if err := o.publisher.TickFailed(ctx, ev, status); err != nil {
			o.logger.Warn("failure notification failed", slog.String("tick_id", tickID), slog.String("error", err.Error()))
		}
	}
	return fmt.Errorf("pipeline: tick %s: %d symbols failed: %w", tickID, len(report.Failures), cause)
}

func (o *Orchestrator) setState(s domain.OrchestratorState) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
	metrics.SetState(s)
}

// nextDelay is the wait before the next tick: the poll interval, or after n
// consecutive failures min(interval*2^n, maxBackoff) when backoff is enabled.
func (o *Orchestrator) nextDelay() time.Duration {
	o.mu.RLock()
	n := o.status.ConsecutiveFailures
	o.mu.RUnlock()
	return Backoff(o.interval, o.maxBackoff, n)
}

// TickLockTTL bounds the duration of one tick: the poll interval plus one
// request timeout for every batch of maxConcurrency fetches (a single batch
// when concurrency is unbounded).
func TickLockTTL(interval, requestTimeout time.Duration, symbols, maxConcurrency int) time.Duration {
	batches := 1
	if maxConcurrency > 0 && symbols > maxConcurrency {
		batches = (symbols + maxConcurrency - 1) / maxConcurrency
	}
	return interval + time.Duration(batches)*requestTimeout
}

// Backoff computes the capped exponential delay after n consecutive failures.
func Backoff(interval, maxBackoff time.Duration, n int) time.Duration {
	if n <= 0 || maxBackoff <= interval {
		return interval
	}
	d := interval
	for i := 0; i < n; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
