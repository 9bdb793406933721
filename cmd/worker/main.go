// Command worker runs the crawl/scrape/reconcile pipeline: a generic
// crawler per resource type (spec §4.3), the save_article intake worker,
// the update_resource reconciler (spec §4.5), and the periodic scheduler
// (spec §4.4) — all bound against a shared broker.Broker and store.Store.
// Structured logging, env-driven configuration, and the health/metrics HTTP
// surface follow the teacher's cmd/worker conventions.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/broker"
	brokermemory "pulsefeed/internal/broker/memory"
	"pulsefeed/internal/controller/inflight"
	"pulsefeed/internal/controller/intake"
	"pulsefeed/internal/controller/reconciler"
	"pulsefeed/internal/controller/scheduler"
	articlecrawl "pulsefeed/internal/crawl/article"
	"pulsefeed/internal/crawl"
	feedcrawl "pulsefeed/internal/crawl/feed"
	imagecrawl "pulsefeed/internal/crawl/image"
	"pulsefeed/internal/crawl/scrapeworker"
	"pulsefeed/internal/fetcher"
	"pulsefeed/internal/infra/db"
	workerinfra "pulsefeed/internal/infra/worker"
	"pulsefeed/internal/observability/logging"
	"pulsefeed/internal/store"
	storememory "pulsefeed/internal/store/memory"
	storepostgres "pulsefeed/internal/store/postgres"
	pkgconfig "pulsefeed/pkg/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// crawlPrefetch bounds concurrent in-flight crawl deliveries per worker;
// spec §9 defaults crawlers to 1 for backpressure.
const crawlPrefetch = 1

func main() {
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, logger)
	defer closeStore()

	b := brokermemory.New()
	if err := declareExchanges(b); err != nil {
		logger.Error("failed to declare exchanges", slog.Any("error", err))
		os.Exit(1)
	}

	fetcherCfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("invalid fetcher configuration, using defaults", slog.Any("error", err))
		fetcherCfg = fetcher.DefaultConfig()
	}
	fetch := fetcher.New(fetcherCfg)

	health := workerinfra.NewHealthServer(fmt.Sprintf(":%d", pkgconfig.GetEnvInt("HEALTH_PORT", 9091)), logger)
	go func() {
		if err := health.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	startMetricsServer(ctx, logger)

	g, ctx := errgroup.WithContext(ctx)

	feedCrawler := &crawl.Crawler{
		ResourceType:   "feed",
		SourceExchange: broker.ExchangeFeeds,
		Fetcher:        fetch,
		Subtype:        &feedcrawl.Subtype{Publisher: b},
		Publisher:      b,
	}
	articleCrawler := &crawl.Crawler{
		ResourceType:   "article",
		SourceExchange: broker.ExchangeArticles,
		Fetcher:        fetch,
		Subtype:        &articlecrawl.Subtype{Publisher: b},
		Publisher:      b,
	}
	imageCrawler := &crawl.Crawler{
		ResourceType:   "image",
		SourceExchange: broker.ExchangeImages,
		Fetcher:        fetch,
		Subtype:        &imagecrawl.Subtype{},
		Publisher:      b,
	}
	scraper := &scrapeworker.Worker{Publisher: b}

	inflightSets := map[string]*inflight.Set{
		"crawl_feeds":     {},
		"crawl_articles":  {},
		"scrape_articles": {},
	}
	recon := reconciler.New(st, b, inflightSets)
	reconciler.RegisterArticleScrapeHooks(recon)

	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeFeeds, "crawl_feed", crawlPrefetch, feedCrawler.Handle)
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeArticles, "crawl_article", crawlPrefetch, articleCrawler.Handle)
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeImages, "crawl_image", crawlPrefetch, imageCrawler.Handle)
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeArticles, "scrape_article", crawlPrefetch, scraper.Handle)
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeArticles, "save_article", 0, intake.Handle(st))
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeFeeds, "update_feed", 0, func(ctx context.Context, msg broker.Message) broker.Outcome {
			return reconciler.Handle(ctx, recon, "feeds", msg)
		})
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeArticles, "update_article", 0, func(ctx context.Context, msg broker.Message) broker.Outcome {
			return reconciler.Handle(ctx, recon, "articles", msg)
		})
	})
	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeImages, "update_image", 0, func(ctx context.Context, msg broker.Message) broker.Outcome {
			return reconciler.Handle(ctx, recon, "images", msg)
		})
	})

	sched := scheduler.New(st, b, scheduler.LoadConfigFromEnv())
	sched.CrawlFeedsInflight = inflightSets["crawl_feeds"]
	sched.CrawlArticlesInflight = inflightSets["crawl_articles"]
	sched.ScrapeArticlesInflight = inflightSets["scrape_articles"]
	sched.Metrics = workerinfra.NewWorkerMetrics()
	g.Go(func() error { return sched.Run(ctx) })

	health.SetReady(true)
	logger.Info("worker started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down cleanly")
}

func declareExchanges(b broker.Broker) error {
	exchanges := []struct {
		name string
		kind broker.ExchangeKind
	}{
		{broker.ExchangeFeeds, broker.Direct},
		{broker.ExchangeArticles, broker.Direct},
		{broker.ExchangeImages, broker.Direct},
		{broker.ExchangeEventStream, broker.Fanout},
		{broker.ExchangeControllerRPC, broker.Direct},
	}
	for _, e := range exchanges {
		if err := b.DeclareExchange(e.name, e.kind); err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.name, err)
		}
	}
	return nil
}

func openStore(ctx context.Context, logger *slog.Logger) (store.Store, func()) {
	if pkgconfig.GetEnvString("STORE_BACKEND", "memory") != "postgres" {
		logger.Info("using in-memory document store")
		return storememory.New(), func() {}
	}

	database, err := db.Open(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("using postgres document store")
	return storepostgres.New(database), closeFunc(database)
}

func closeFunc(database *sql.DB) func() {
	return func() {
		_ = database.Close()
	}
}

func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

func startMetricsServer(ctx context.Context, logger *slog.Logger) {
	port := pkgconfig.GetEnvInt("METRICS_PORT", 9090)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
