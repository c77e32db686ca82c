package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/config"
	"BabylonEngine/internal/engine"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
	"BabylonEngine/internal/persistence"
	"BabylonEngine/internal/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv("BABYLON_CONFIG"), "path to TOML config file")
	flag.Parse()

	log := observability.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Postgres ---
	store, err := persistence.OpenPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	log.Info().Msg("postgres connected, schema ensured")

	// --- NATS ---
	nc, err := stream.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	publisher := stream.NewEventPublisher(nc, cfg.NATS.EventsSubject)

	// --- Engine ---
	tracker := persistence.NewTracker()
	eng := engine.New(cfg,
		engine.WithTracker(tracker),
		engine.WithPublisher(publisher),
		engine.WithMetrics(metrics),
	)

	sources := persistence.Sources{
		Ledger:    eng.Ledger(),
		Registry:  eng.Registry(),
		Book:      eng.Book(),
		Maker:     eng.Maker(),
		Snapshots: eng.Snapshots(),
		Monitor:   eng.Monitor(),
		Funding:   eng.Funding(),
	}

	// Persisted state first, then configured instruments fill the gaps:
	// Initialize no-ops on tickers the hydration already restored.
	if err := persistence.Hydrate(ctx, store, sources); err != nil {
		log.Fatal().Err(err).Msg("hydrate state")
	}
	eng.InitializeMarkets(instrumentsFromConfig(cfg.Instruments))

	// --- Price ingestion ---
	subscriber := stream.NewPriceSubscriber(nc, cfg.NATS.PricesSubject, eng)
	if err := subscriber.Start(); err != nil {
		log.Fatal().Err(err).Msg("start price subscription")
	}

	errChan := make(chan error, 4)

	// --- Flush worker ---
	flusher := persistence.NewFlushWorker(tracker, store, sources, cfg.Engine.FlushInterval.Duration, metrics)
	go func() {
		errChan <- flusher.Run(ctx)
	}()

	// --- Funding scheduler ---
	// Checking every minute is enough: the boundary idempotency inside
	// the processor makes extra invocations free.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				eng.ProcessFunding(now)
			}
		}
	}()

	// --- Daily snapshot scheduler ---
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				eng.RecordDailySnapshot(now)
			}
		}
	}()

	// --- Metrics + health server ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", health.LivenessHandler)
		mux.HandleFunc("/readyz", health.ReadinessHandler)

		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			srv.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	health.SetReady(true)
	log.Info().
		Int("markets", len(eng.GetMarkets())).
		Str("metrics_addr", cfg.Server.MetricsAddr).
		Msg("engine ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("worker failed, shutting down")
	}

	health.SetReady(false)
	subscriber.Stop()
	cancel()

	// The flush worker performs a final flush on cancellation; wait for
	// it so the last dirty state reaches the database.
	select {
	case <-errChan:
	case <-time.After(30 * time.Second):
		log.Error().Msg("final flush timed out")
	}
	log.Info().Msg("shutdown complete")
}

func instrumentsFromConfig(items []config.InstrumentConfig) []market.Instrument {
	out := make([]market.Instrument, 0, len(items))
	for _, it := range items {
		out = append(out, market.Instrument{
			Name:         it.Name,
			BasePrice:    decimal.NewFromFloat(it.BasePrice),
			MaxLeverage:  it.MaxLeverage,
			MinOrderSize: decimal.NewFromFloat(it.MinOrderSize),
		})
	}
	return out
}
