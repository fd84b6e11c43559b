package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/notify"
	"github.com/alanyoungcy/cryptoscreener/internal/screener"
)

const recentEventsKept = 100

// Broadcaster pushes a frame to local websocket subscribers of topic.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

// ScreenerService is the consumer-facing board. It keeps the last known
// metrics for every symbol (flagging those not refreshed by the latest tick
// as stale), detects signal transitions, and fans each tick out to the
// websocket hub, the bus, the publication cache, notifications and the audit
// log. Every collaborator except the logger is optional.
type ScreenerService struct {
	symbols   []string
	signalTTL time.Duration
	cache     domain.PublicationCache
	mirror    domain.LedgerMirror
	bus       domain.SignalBus
	audit     domain.AuditStore
	notifier  *notify.Notifier
	hub       Broadcaster
	statusFn  func() domain.FeedStatus
	logger    *slog.Logger

	mu         sync.RWMutex
	board      map[string]domain.SymbolMetrics
	anchors    map[string]domain.SignalRecord
	latest     domain.Publication
	status     domain.FeedStatus
	failStreak int
	events     []domain.TickEvent
}

// ScreenerServiceConfig wires a ScreenerService.
type ScreenerServiceConfig struct {
	// Symbols fixes the row order of the board.
	Symbols   []string
	SignalTTL time.Duration
	Cache     domain.PublicationCache
	Mirror    domain.LedgerMirror
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Notifier  *notify.Notifier
	Hub       Broadcaster
	Logger    *slog.Logger
}

// NewScreenerService creates an empty board.
func NewScreenerService(cfg ScreenerServiceConfig) *ScreenerService {
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = screener.DefaultSignalTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	syms := make([]string, len(cfg.Symbols))
	copy(syms, cfg.Symbols)
	return &ScreenerService{
		symbols:   syms,
		signalTTL: cfg.SignalTTL,
		cache:     cfg.Cache,
		mirror:    cfg.Mirror,
		bus:       cfg.Bus,
		audit:     cfg.Audit,
		notifier:  cfg.Notifier,
		hub:       cfg.Hub,
		logger:    logger.With(slog.String("component", "screener_service")),
		board:     make(map[string]domain.SymbolMetrics),
		anchors:   make(map[string]domain.SignalRecord),
		latest:    domain.Publication{Sentiment: domain.NeutralSentiment()},
		status:    domain.FeedStatus{State: domain.StateIdle},
	}
}

// SetHub attaches the websocket hub after construction.
func (s *ScreenerService) SetHub(h Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = h
}

// SetStatusSource makes Status read live state from fn, typically the
// orchestrator running in the same process.
func (s *ScreenerService) SetStatusSource(fn func() domain.FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFn = fn
}

type transition struct {
	event string
	prev  domain.SymbolMetrics
	cur   domain.SymbolMetrics
}

// Publish merges a tick into the board and fans it out. It implements the
// orchestrator's publisher. Fan-out failures are logged and joined into the
// returned error; the board itself is always updated.
func (s *ScreenerService) Publish(ctx context.Context, pub domain.Publication, ev domain.TickEvent) error {
	s.mu.Lock()
	var changes []transition
	refreshed := make(map[string]bool, len(pub.Metrics))
	for _, m := range pub.Metrics {
		refreshed[m.Symbol] = true
		held, holding := s.anchors[m.Symbol]
		if t, ok := detectTransition(s.board[m.Symbol], held, holding, m); ok {
			changes = append(changes, t)
		}
		if rec, ok := m.Anchor(); ok {
			s.anchors[m.Symbol] = rec
		} else {
			delete(s.anchors, m.Symbol)
		}
		m.Stale = false
		s.board[m.Symbol] = m
	}
	for sym, m := range s.board {
		if !refreshed[sym] {
			m.Stale = true
			s.board[sym] = m
		}
	}
	recovered := s.failStreak
	s.failStreak = 0
	s.latest = domain.Publication{
		TickID:        pub.TickID,
		Metrics:       s.rowsLocked(),
		Sentiment:     pub.Sentiment,
		FailedSymbols: pub.FailedSymbols,
		PublishedAt:   pub.PublishedAt,
	}
	s.status.State = domain.StateIdle
	s.status.Degraded = false
	s.status.Message = ""
	s.status.ConsecutiveFailures = 0
	s.status.LastTickID = pub.TickID
	s.status.LastTickAt = ev.At
	s.status.LastPublishedAt = pub.PublishedAt
	s.pushEventLocked(ev)
	board := s.latest
	status := s.status
	s.mu.Unlock()

	var errs []error
	for _, t := range changes {
		errs = append(errs, s.handleTransition(ctx, t)...)
	}
	if recovered > 0 {
		title, msg := notify.FeedRecovered(ev, recovered)
		errs = append(errs, s.alert(ctx, domain.EventFeedRecovered, "", title, msg,
			map[string]any{"tick_id": ev.TickID, "failed_ticks": recovered}))
	}

	errs = append(errs, s.fanOut(ctx, domain.EnvelopeScreener, domain.ChannelScreener, board))
	errs = append(errs, s.fanOut(ctx, domain.EnvelopeStatus, domain.ChannelStatus, status))
	errs = append(errs, s.appendEvent(ctx, ev))
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, board); err != nil {
			errs = append(errs, fmt.Errorf("service: cache publication: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TickFailed records a failed tick. The board keeps its last values; only
// the status changes. The first failure of a streak raises a feed_down alert.
func (s *ScreenerService) TickFailed(ctx context.Context, ev domain.TickEvent, status domain.FeedStatus) error {
	s.mu.Lock()
	s.failStreak++
	first := s.failStreak == 1
	s.status = status
	s.pushEventLocked(ev)
	s.mu.Unlock()

	var errs []error
	if first {
		title, msg := notify.FeedDown(ev)
		errs = append(errs, s.alert(ctx, domain.EventFeedDown, "", title, msg,
			map[string]any{"tick_id": ev.TickID, "failed": ev.Failed, "error": ev.Error}))
	}
	errs = append(errs, s.fanOut(ctx, domain.EnvelopeStatus, domain.ChannelStatus, status))
	errs = append(errs, s.appendEvent(ctx, ev))
	return errors.Join(errs...)
}

// Load replaces the board with a publication produced elsewhere, e.g. read
// from the cache at startup or received from the bus in api mode. It does
// not alert or fan out to the bus, only to the local hub.
func (s *ScreenerService) Load(pub domain.Publication) {
	s.mu.Lock()
	s.board = make(map[string]domain.SymbolMetrics, len(pub.Metrics))
	for _, m := range pub.Metrics {
		s.board[m.Symbol] = m
	}
	s.latest = pub
	s.latest.Metrics = s.rowsLocked()
	s.status.LastTickID = pub.TickID
	s.status.LastPublishedAt = pub.PublishedAt
	hub := s.hub
	s.mu.Unlock()

	if hub != nil {
		if frame, err := domain.NewEnvelope(domain.EnvelopeScreener, pub); err == nil {
			hub.Broadcast(domain.EnvelopeScreener, frame)
		}
	}
}

// ApplyStatus records a status received from another process.
func (s *ScreenerService) ApplyStatus(st domain.FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Warm loads the cached publication, if any, into the board and returns it.
func (s *ScreenerService) Warm(ctx context.Context) (domain.Publication, bool) {
	if s.cache == nil {
		return domain.Publication{}, false
	}
	pub, err := s.cache.GetLatest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("load cached publication failed", slog.String("error", err.Error()))
		}
		return domain.Publication{}, false
	}
	for i := range pub.Metrics {
		pub.Metrics[i].Stale = true
	}
	s.Load(pub)
	return pub, true
}

// RestoreLedger seeds ledger from the mirror and returns the count restored.
// The restored records also become the anchors the next tick is compared
// against, so a restored symbol that comes back without a signal is cleared
// from the mirror even when no cached board survived the restart.
func (s *ScreenerService) RestoreLedger(ctx context.Context, ledger *screener.Ledger, now time.Time) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	recs, err := s.mirror.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: restore ledger: %w", err)
	}
	n := ledger.Restore(recs, now, s.signalTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, rec := range ledger.Snapshot() {
		s.anchors[sym] = rec
	}
	return n, nil
}

// Latest returns the current board.
func (s *ScreenerService) Latest() domain.Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pub := s.latest
	pub.Metrics = append([]domain.SymbolMetrics(nil), s.latest.Metrics...)
	return pub
}

// Symbol returns the board row for sym.
func (s *ScreenerService) Symbol(sym string) (domain.SymbolMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.board[sym]
	if !ok {
		return domain.SymbolMetrics{}, fmt.Errorf("service: symbol %s: %w", sym, domain.ErrNotFound)
	}
	return m, nil
}

// View returns the latest publication with its rows sorted and filtered by
// opts. Header and rows come from the same tick.
func (s *ScreenerService) View(opts screener.ViewOpts) domain.Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pub := s.latest
	pub.Metrics = screener.ApplyView(s.latest.Metrics, opts)
	pub.FailedSymbols = append([]string(nil), s.latest.FailedSymbols...)
	return pub
}

// Sentiment returns the latest market sentiment.
func (s *ScreenerService) Sentiment() domain.MarketSentiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest.Sentiment
}

// Status returns the feed status, preferring the live source when set.
func (s *ScreenerService) Status() domain.FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.statusFn != nil {
		return s.statusFn()
	}
	return s.status
}

// RecentEvents returns up to count tick events, newest first. The bus stream
// is authoritative when configured; otherwise the in-process history is used.
func (s *ScreenerService) RecentEvents(ctx context.Context, count int) ([]domain.TickEvent, error) {
	if count <= 0 || count > recentEventsKept {
		count = recentEventsKept
	}
	if s.bus != nil {
		msgs, err := s.bus.StreamRecent(ctx, domain.StreamEvents, count)
		if err != nil {
			return nil, fmt.Errorf("service: recent events: %w", err)
		}
		out := make([]domain.TickEvent, 0, len(msgs))
		for _, msg := range msgs {
			var ev domain.TickEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				continue
			}
			out = append(out, ev)
		}
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(count, len(s.events))
	out := make([]domain.TickEvent, 0, n)
	for i := len(s.events) - 1; i >= len(s.events)-n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// AuditLog lists audit entries. It returns domain.ErrUnavailable when no
// audit store is configured.
func (s *ScreenerService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, domain.ErrUnavailable
	}
	return s.audit.List(ctx, opts)
}

// detectTransition compares the anchor last held for a symbol with its new
// metrics. A new anchor (fresh activation, flip, or re-anchor after expiry)
// is an activation; losing the anchor is a clear. prev is the symbol's last
// board row and may be empty after a restart.
func detectTransition(prev domain.SymbolMetrics, held domain.SignalRecord, holding bool, cur domain.SymbolMetrics) (transition, bool) {
	if holding {
		prev = withAnchor(prev, cur.Symbol, held)
	} else {
		prev.Signal = domain.SignalNeutral
	}
	curAnchor, curOK := cur.Anchor()

	switch {
	case curOK && (!holding || held.Direction != curAnchor.Direction ||
		!held.ActivatedAt.Equal(curAnchor.ActivatedAt)):
		return transition{event: domain.EventSignalActivated, prev: prev, cur: cur}, true
	case holding && !curOK:
		return transition{event: domain.EventSignalCleared, prev: prev, cur: cur}, true
	}
	return transition{}, false
}

// withAnchor overlays rec on a board row so alerts describe the signal that
// was actually held.
func withAnchor(m domain.SymbolMetrics, symbol string, rec domain.SignalRecord) domain.SymbolMetrics {
	ref, at := rec.ReferencePrice, rec.ActivatedAt
	m.Symbol = symbol
	m.Signal = rec.Direction
	m.SignalReferencePrice = &ref
	m.SignalActivatedAt = &at
	return m
}

func (s *ScreenerService) handleTransition(ctx context.Context, t transition) []error {
	var errs []error
	var title, msg string
	detail := map[string]any{"price": t.cur.Price, "score": t.cur.Score, "strength": t.cur.Strength}

	switch t.event {
	case domain.EventSignalActivated:
		title, msg = notify.SignalActivated(t.cur)
		rec, _ := t.cur.Anchor()
		detail["direction"] = string(rec.Direction)
		detail["reference_price"] = rec.ReferencePrice
		detail["activated_at"] = rec.ActivatedAt
		if t.prev.Signal.Active() {
			detail["previous_direction"] = string(t.prev.Signal)
		}
		if s.mirror != nil {
			if err := s.mirror.Put(ctx, t.cur.Symbol, rec, rec.Remaining(t.cur.UpdatedAt, s.signalTTL)); err != nil {
				errs = append(errs, fmt.Errorf("service: mirror %s: %w", t.cur.Symbol, err))
			}
		}
	case domain.EventSignalCleared:
		title, msg = notify.SignalCleared(t.prev, t.cur)
		detail["direction"] = string(t.prev.Signal)
		if s.mirror != nil {
			if err := s.mirror.Delete(ctx, t.cur.Symbol); err != nil {
				errs = append(errs, fmt.Errorf("service: unmirror %s: %w", t.cur.Symbol, err))
			}
		}
	}

	s.logger.Info("signal transition",
		slog.String("event", t.event),
		slog.String("symbol", t.cur.Symbol),
		slog.String("signal", string(t.cur.Signal)),
	)
	errs = append(errs, s.alert(ctx, t.event, t.cur.Symbol, title, msg, detail))
	errs = append(errs, s.fanOut(ctx, domain.EnvelopeSignal, domain.ChannelSignal, map[string]any{
		"event":   t.event,
		"metrics": t.cur,
	}))
	return errs
}

func (s *ScreenerService) alert(ctx context.Context, event, symbol, title, msg string, detail map[string]any) error {
	var errs []error
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, symbol, detail); err != nil {
			errs = append(errs, fmt.Errorf("service: audit %s: %w", event, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ScreenerService) fanOut(ctx context.Context, typ, channel string, v any) error {
	frame, err := domain.NewEnvelope(typ, v)
	if err != nil {
		return fmt.Errorf("service: encode %s: %w", typ, err)
	}
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub != nil {
		hub.Broadcast(typ, frame)
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, channel, frame); err != nil {
			return fmt.Errorf("service: publish %s: %w", channel, err)
		}
	}
	return nil
}

// appendEvent offers ev to websocket clients subscribed to the tick topic and
// appends it to the events stream.
func (s *ScreenerService) appendEvent(ctx context.Context, ev domain.TickEvent) error {
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub != nil {
		if frame, err := domain.NewEnvelope(domain.EnvelopeTick, ev); err == nil {
			hub.Broadcast(domain.EnvelopeTick, frame)
		}
	}
	if s.bus == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("service: encode tick event: %w", err)
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamEvents, data); err != nil {
		return fmt.Errorf("service: append tick event: %w", err)
	}
	return nil
}

func (s *ScreenerService) pushEventLocked(ev domain.TickEvent) {
	s.events = append(s.events, ev)
	if over := len(s.events) - recentEventsKept; over > 0 {
		s.events = append(s.events[:0], s.events[over:]...)
	}
}

// rowsLocked returns board rows in universe order, followed by any symbols
// outside the universe sorted by name.
func (s *ScreenerService) rowsLocked() []domain.SymbolMetrics {
	out := make([]domain.SymbolMetrics, 0, len(s.board))
	listed := make(map[string]bool, len(s.symbols))
	for _, sym := range s.symbols {
		listed[sym] = true
		if m, ok := s.board[sym]; ok {
			out = append(out, m)
		}
	}
	var extra []domain.SymbolMetrics
	for sym, m := range s.board {
		if !listed[sym] {
			extra = append(extra, m)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Symbol < extra[j].Symbol })
	return append(out, extra...)
}
