// Package main is the entry point for the kr-market-feed service: a
// market-data ingestion and analytics backend for a curated watchlist of
// Korean equities and ETFs. It wires the store, cache, upstream client,
// collector, analytics, screener, and alert components together, registers
// the KST-calendar collection schedules, and serves the HTTP API until
// interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/kr-market-feed/internal/alerts"
	"github.com/aristath/kr-market-feed/internal/analytics"
	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/collector"
	"github.com/aristath/kr-market-feed/internal/config"
	"github.com/aristath/kr-market-feed/internal/scheduler"
	"github.com/aristath/kr-market-feed/internal/screener"
	"github.com/aristath/kr-market-feed/internal/server"
	"github.com/aristath/kr-market-feed/internal/store"
	"github.com/aristath/kr-market-feed/internal/upstream"
	"github.com/aristath/kr-market-feed/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting kr-market-feed")

	st, err := store.Open(store.Config{
		Path:    cfg.DatabasePath,
		Profile: store.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	memCache := cache.New(cache.Config{
		MaxEntries: cfg.CacheMaxEntries,
		FastTTL:    cfg.CacheFastTTL,
		NormalTTL:  cfg.CacheNormalTTL,
		SlowTTL:    cfg.CacheSlowTTL,
		StatusTTL:  cfg.CacheStatusTTL,
	})

	upstreamClient := upstream.NewHTTPClient(upstream.Options{
		BaseURL:           cfg.UpstreamBaseURL,
		RequestsPerSecond: cfg.UpstreamRequestsPerSecond,
		MaxRetries:        cfg.UpstreamMaxRetries,
		RetryBaseDelay:    cfg.UpstreamRetryBaseDelay,
	}, log)

	coll := collector.New(st, upstreamClient, memCache, collector.Config{
		MaxConcurrency: cfg.CollectorMaxConcurrency,
		DefaultDays:    cfg.CollectorDefaultDays,
	}, log)

	analyticsSvc := analytics.New(st, 0, log)
	screenerSvc := screener.New(st, log)
	alertsSvc := alerts.New(st, log)

	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, coll, screenerSvc, st); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduled jobs")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Store:     st,
		Cache:     memCache,
		Collector: coll,
		Analytics: analyticsSvc,
		Screener:  screenerSvc,
		Alerts:    alertsSvc,
		Scheduler: sched,
		Upstream:  upstreamClient,
		APIKey:    cfg.APIKey,
		DevMode:   cfg.DevMode,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}

	log.Info().Msg("Server stopped")
}

// registerJobs wires the collection schedules: the daily end-of-day pass,
// the intraday refresh during KRX session hours, the weekday fundamentals
// pass, and the weekly catalog snapshot rebuild. Each job is skipped (not
// queued) by the scheduler if its previous fire is still running, and the
// collector's own single-flight gates protect against overlap with
// API-triggered runs.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, coll *collector.Collector, screenerSvc *screener.Service, st *store.Store) error {
	daily := scheduler.NewFuncJob("daily-collection", func(ctx context.Context) error {
		_, err := coll.CollectAll(ctx, cfg.CollectorDefaultDays)
		return err
	})
	if err := sched.AddJob(cfg.DailyCollectionCron, daily); err != nil {
		return err
	}

	intraday := scheduler.NewFuncJob("intraday-collection", func(ctx context.Context) error {
		_, err := coll.CollectIntraday(ctx)
		return err
	})
	if err := sched.AddJob(cfg.IntradayCollectionCron, intraday); err != nil {
		return err
	}

	fundamentals := scheduler.NewFuncJob("fundamentals-collection", func(ctx context.Context) error {
		_, err := coll.CollectFundamentals(ctx)
		return err
	})
	if err := sched.AddJob(cfg.FundamentalsCron, fundamentals); err != nil {
		return err
	}

	catalog := scheduler.NewFuncJob("catalog-refresh", func(ctx context.Context) error {
		return screenerSvc.CollectCatalog(ctx, st, coll.Registry(), collector.JobCatalogCollect)
	})
	return sched.AddJob(cfg.CatalogRefreshCron, catalog)
}
