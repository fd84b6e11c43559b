package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/metrics"
	"github.com/alanyoungcy/cryptoscreener/internal/pipeline"
	"github.com/alanyoungcy/cryptoscreener/internal/screener"
	"github.com/alanyoungcy/cryptoscreener/internal/server"
	"github.com/alanyoungcy/cryptoscreener/internal/server/handler"
	"github.com/alanyoungcy/cryptoscreener/internal/server/ws"
	"github.com/alanyoungcy/cryptoscreener/internal/service"
)

const shutdownTimeout = 5 * time.Second

// FullMode runs the engine, the HTTP API and the websocket hub in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.newService(deps)
	orch, err := a.startEngine(ctx, g, deps, svc)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	svc.SetStatusSource(orch.Status)

	if a.cfg.Server.Enabled {
		hub := a.startHub(ctx, g, svc)
		svc.SetHub(hub)
		a.startHTTPServer(ctx, g, deps, svc, hub)
	} else if a.cfg.Metrics.Enabled {
		a.startMetricsListener(ctx, g)
	}

	return ignoreCanceled(g.Wait())
}

// EngineMode runs only the tick loop. Publications reach API replicas through
// the redis bus and publication cache.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.newService(deps)
	if _, err := a.startEngine(ctx, g, deps, svc); err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}
	if a.cfg.Metrics.Enabled {
		a.startMetricsListener(ctx, g)
	}

	return ignoreCanceled(g.Wait())
}

// APIMode serves the board from redis without running the engine. The board
// is warmed from the publication cache and then follows the bus.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")
	if deps.SignalBus == nil {
		return errors.New("api mode: redis signal bus is required")
	}
	g, ctx := errgroup.WithContext(ctx)

	svc := a.newService(deps)
	if pub, ok := svc.Warm(ctx); ok {
		a.logger.InfoContext(ctx, "board warmed from cache",
			slog.String("tick_id", pub.TickID),
			slog.Int("symbols", len(pub.Metrics)),
		)
	}

	hub := a.startHub(ctx, g, svc)
	svc.SetHub(hub)

	g.Go(func() error {
		return a.followBus(ctx, deps.SignalBus, svc)
	})
	for channel, topic := range map[string]string{
		domain.ChannelSignal: domain.EnvelopeSignal,
		domain.ChannelStatus: domain.EnvelopeStatus,
	} {
		g.Go(func() error {
			if err := hub.Relay(ctx, deps.SignalBus, channel, topic); err != nil {
				return fmt.Errorf("api mode: relay %s: %w", channel, err)
			}
			return nil
		})
	}

	a.startHTTPServer(ctx, g, deps, svc, hub)
	return ignoreCanceled(g.Wait())
}

func (a *App) newService(deps *Dependencies) *service.ScreenerService {
	return service.NewScreenerService(service.ScreenerServiceConfig{
		Symbols:   a.cfg.Screener.Symbols,
		SignalTTL: a.cfg.Screener.SignalTTL.Duration,
		Cache:     deps.PublicationCache,
		Mirror:    deps.LedgerMirror,
		Bus:       deps.SignalBus,
		Audit:     deps.AuditStore,
		Notifier:  deps.Notifier,
		Logger:    a.logger,
	})
}

// startEngine builds the engine, restores shared state and adds the
// orchestrator loop to g.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.ScreenerService) (*pipeline.Orchestrator, error) {
	if deps.Source == nil {
		return nil, errors.New("no ticker source configured")
	}
	sc := a.cfg.Screener

	fetcher := screener.NewFetcher(screener.FetcherConfig{
		Source:         deps.Source,
		RequestTimeout: sc.RequestTimeout.Duration,
		MaxConcurrency: sc.MaxConcurrency,
		Logger:         a.logger,
	})
	engine := screener.NewEngine(screener.EngineConfig{
		Symbols:     sc.Symbols,
		HistorySize: sc.HistorySize,
		MinHistory:  sc.MinHistory,
		SignalTTL:   sc.SignalTTL.Duration,
		Fetcher:     fetcher,
		Logger:      a.logger,
	})

	// Active anchors survive restarts through the mirror. Volume history
	// does not; it refills within MinHistory ticks.
	n, err := svc.RestoreLedger(ctx, engine.Ledger(), time.Now().UTC())
	if err != nil {
		a.logger.WarnContext(ctx, "signal ledger restore failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.InfoContext(ctx, "signal ledger restored", slog.Int("signals", n))
	}
	if pub, ok := svc.Warm(ctx); ok {
		engine.Sentiment().Seed(pub.Sentiment)
		a.logger.InfoContext(ctx, "board warmed from cache", slog.String("tick_id", pub.TickID))
	}

	var lock domain.LockManager
	if sc.DistributedLock {
		lock = deps.LockManager
	}
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Engine:       engine,
		Publisher:    svc,
		Lock:         lock,
		LockTTL:      pipeline.TickLockTTL(sc.PollInterval.Duration, sc.RequestTimeout.Duration, len(sc.Symbols), sc.MaxConcurrency),
		PollInterval: sc.PollInterval.Duration,
		MaxBackoff:   sc.MaxBackoff.Duration,
		Logger:       a.logger,
	})

	a.logger.InfoContext(ctx, "engine configured",
		slog.String("provider", deps.Source.Name()),
		slog.Int("symbols", len(sc.Symbols)),
		slog.Duration("poll_interval", sc.PollInterval.Duration),
		slog.Bool("distributed_lock", lock != nil),
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return orch, nil
}

func (a *App) startHub(ctx context.Context, g *errgroup.Group, svc *service.ScreenerService) *ws.Hub {
	hub := ws.NewHub(a.logger, ws.Config{
		Initial: func() [][]byte {
			var frames [][]byte
			if frame, err := domain.NewEnvelope(domain.EnvelopeScreener, svc.Latest()); err == nil {
				frames = append(frames, frame)
			}
			if frame, err := domain.NewEnvelope(domain.EnvelopeStatus, svc.Status()); err == nil {
				frames = append(frames, frame)
			}
			return frames
		},
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	return hub
}

// followBus keeps an api-mode board in step with the engine by applying
// screener and status envelopes from the bus.
func (a *App) followBus(ctx context.Context, bus domain.SignalBus, svc *service.ScreenerService) error {
	screenerCh, err := bus.Subscribe(ctx, domain.ChannelScreener)
	if err != nil {
		return fmt.Errorf("api mode: subscribe %s: %w", domain.ChannelScreener, err)
	}
	statusCh, err := bus.Subscribe(ctx, domain.ChannelStatus)
	if err != nil {
		return fmt.Errorf("api mode: subscribe %s: %w", domain.ChannelStatus, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-screenerCh:
			if !ok {
				return errors.New("api mode: screener subscription closed")
			}
			var pub domain.Publication
			if err := decodeEnvelope(data, domain.EnvelopeScreener, &pub); err != nil {
				a.logger.WarnContext(ctx, "bad screener frame", slog.String("error", err.Error()))
				continue
			}
			svc.Load(pub)
		case data, ok := <-statusCh:
			if !ok {
				return errors.New("api mode: status subscription closed")
			}
			var st domain.FeedStatus
			if err := decodeEnvelope(data, domain.EnvelopeStatus, &st); err != nil {
				a.logger.WarnContext(ctx, "bad status frame", slog.String("error", err.Error()))
				continue
			}
			svc.ApplyStatus(st)
		}
	}
}

func decodeEnvelope(data []byte, want string, v any) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type != want {
		return fmt.Errorf("envelope type %q, want %q", env.Type, want)
	}
	return json.Unmarshal(env.Data, v)
}

// startHTTPServer adds the API server and its graceful shutdown to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.ScreenerService, hub *ws.Hub) {
	cfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}
	if a.cfg.Metrics.Enabled {
		cfg.MetricsPath = a.cfg.Metrics.Path
		cfg.Metrics = metrics.Handler()
	}
	health := handler.NewHealthHandler(a.cfg.Mode, a.logger)
	for name, probe := range deps.Probes {
		health.WithProbe(name, probe)
	}
	handlers := server.Handlers{
		Health:   health,
		Status:   handler.NewStatusHandler(svc, a.cfg.Mode),
		Screener: handler.NewScreenerHandler(svc, a.logger),
		Events:   handler.NewEventsHandler(svc, a.logger),
	}
	if deps.RateLimiter == nil && cfg.RateLimit > 0 {
		a.logger.InfoContext(ctx, "rate limiting disabled (redis not configured)")
	}
	srv := server.NewServer(cfg, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startMetricsListener exposes /metrics on the server port when the API is
// not running in this process.
func (a *App) startMetricsListener(ctx context.Context, g *errgroup.Group) {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := metrics.Serve(addr, a.cfg.Metrics.Path)
	a.logger.InfoContext(ctx, "metrics listener started",
		slog.String("addr", addr),
		slog.String("path", a.cfg.Metrics.Path),
	)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
