// Package scheduler implements spec §4.4's three controller scheduling
// loops: (feeds, crawl), (articles, crawl), (articles, scrape). Each loop is
// a timer-driven scan-then-publish sweep — spec §9 names this "the simplest
// and acceptable" re-architecture of the original's polling agents
// (original_source backend/renewal_backend/controller.py), with a later
// optimization (priority queue keyed by next-due time) explicitly left out
// of scope.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/controller/inflight"
	workerinfra "pulsefeed/internal/infra/worker"
	"pulsefeed/internal/store"
)

// Scheduler owns the three sweeps and their in-flight dedup sets. One Set
// per (action, collection) pair, matching spec §4.4's "per-action sets
// inflight[action]" — reconciler.Reconciler removes a key once the matching
// update_resource has been applied.
type Scheduler struct {
	Store     store.Store
	Publisher broker.Publisher
	Config    Config

	CrawlFeedsInflight     *inflight.Set
	CrawlArticlesInflight  *inflight.Set
	ScrapeArticlesInflight *inflight.Set

	// Metrics records each sweep's run outcome, duration, and queued-resource
	// count, if set. Nil is a valid zero value — sweeps run unmetered.
	Metrics *workerinfra.WorkerMetrics
}

// New builds a Scheduler with fresh in-flight sets.
func New(st store.Store, pub broker.Publisher, cfg Config) *Scheduler {
	return &Scheduler{
		Store:                  st,
		Publisher:              pub,
		Config:                 cfg,
		CrawlFeedsInflight:     &inflight.Set{},
		CrawlArticlesInflight:  &inflight.Set{},
		ScrapeArticlesInflight: &inflight.Set{},
	}
}

// Run starts all three sweeps as a `refreshRate; sleep; repeat` loop, per
// spec §4.4's pseudocode, and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, "crawl_feeds", s.Config.CrawlFeedsRate, s.queueCrawlFeeds) })
	g.Go(func() error { return s.loop(ctx, "crawl_articles", s.Config.CrawlArticlesRate, s.queueCrawlArticles) })
	g.Go(func() error { return s.loop(ctx, "scrape_articles", s.Config.ScrapeArticlesRate, s.queueScrapeArticles) })
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sweep string, refreshRate time.Duration, queueMethod func(ctx context.Context, since time.Time) int) error {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	s.runSweep(ctx, sweep, queueMethod, time.Now().Add(-refreshRate))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx, sweep, queueMethod, time.Now().Add(-refreshRate))
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context, sweep string, queueMethod func(ctx context.Context, since time.Time) int, since time.Time) {
	if s.Metrics == nil {
		queueMethod(ctx, since)
		return
	}
	start := time.Now()
	queued := queueMethod(ctx, since)
	s.Metrics.RecordSweepDuration(sweep, time.Since(start).Seconds())
	s.Metrics.RecordResourcesQueued(sweep, queued)
	s.Metrics.RecordSweepRun(sweep, "success")
	s.Metrics.RecordLastSuccess(sweep)
}

// queueCrawlFeeds scans feeds where is_redirect != true AND (crawl_status.when
// missing OR <= since), per spec §4.4.
func (s *Scheduler) queueCrawlFeeds(ctx context.Context, since time.Time) int {
	docs, err := s.Store.Scan(ctx, "feeds", func(d store.Document) bool {
		if redirect, _ := d["is_redirect"].(bool); redirect {
			return false
		}
		return statusDue(d, "crawl_status", since)
	})
	if err != nil {
		slog.Warn("scheduler: feeds scan failed", slog.String("error", err.Error()))
		return 0
	}
	return s.publishEach(ctx, docs, s.CrawlFeedsInflight, "crawl_feeds", broker.ExchangeFeeds, "crawl_feed")
}

// queueCrawlArticles scans articles with no contents and no crawl_status
// yet, per spec §4.4.
func (s *Scheduler) queueCrawlArticles(ctx context.Context, since time.Time) int {
	docs, err := s.Store.Scan(ctx, "articles", func(d store.Document) bool {
		_, hasContents := d["contents"]
		return !hasContents && d["crawl_status"] == nil
	})
	if err != nil {
		slog.Warn("scheduler: articles crawl scan failed", slog.String("error", err.Error()))
		return 0
	}
	docs = sortByLastSeenDesc(docs)
	return s.publishEach(ctx, docs, s.CrawlArticlesInflight, "crawl_articles", broker.ExchangeArticles, "crawl_article")
}

// queueScrapeArticles scans articles with contents present but no
// scrape_status yet, per spec §4.4.
func (s *Scheduler) queueScrapeArticles(ctx context.Context, since time.Time) int {
	docs, err := s.Store.Scan(ctx, "articles", func(d store.Document) bool {
		_, hasContents := d["contents"]
		return hasContents && d["scrape_status"] == nil
	})
	if err != nil {
		slog.Warn("scheduler: articles scrape scan failed", slog.String("error", err.Error()))
		return 0
	}
	docs = sortByLastSeenDesc(docs)
	return s.publishScrapeArticles(ctx, docs)
}

// publishScrapeArticles re-publishes scrape_article for articles that were
// crawled but never successfully scraped (e.g. a prior scrape attempt
// errored). Unlike publishEach's crawl_* sweeps, the scrape worker needs the
// article's already-fetched contents in hand — it never re-fetches — so
// this carries the stored "contents" field rather than a bare resource ref.
func (s *Scheduler) publishScrapeArticles(ctx context.Context, docs []store.Document) int {
	published := 0
	for _, doc := range docs {
		url, _ := doc["url"].(string)
		contents, _ := doc["contents"].(string)
		if url == "" {
			continue
		}
		key := inflight.Key("scrape_articles", doc.ID())
		if !s.ScrapeArticlesInflight.TryAdd(key) {
			continue
		}

		body, err := json.Marshal(map[string]any{
			"resource": map[string]any{"url": url, "contents": contents},
		})
		if err != nil {
			slog.Error("scheduler: failed to marshal scrape_article message", slog.String("error", err.Error()))
			s.ScrapeArticlesInflight.Remove(key)
			continue
		}
		if err := s.Publisher.Publish(ctx, broker.ExchangeArticles, "scrape_article", body); err != nil {
			slog.Warn("scheduler: failed to publish scrape_article, will retry next sweep",
				slog.String("error", err.Error()))
			s.ScrapeArticlesInflight.Remove(key)
			continue
		}
		published++
	}
	return published
}

// publishEach implements the dedup-then-publish half of spec §4.4's
// in-flight set contract: "Before publishing, skip if present; else add then
// publish." Keys are "<action>:<resourceID>", matching spec §4.5 step 7
// ("remove doc._id from inflight"), not the URL — every scanned document
// already carries an _id, having been upserted into the collection earlier
// (by save_article, or an earlier sweep).
func (s *Scheduler) publishEach(ctx context.Context, docs []store.Document, set *inflight.Set, action, exchange, routingKey string) int {
	published := 0
	for _, doc := range docs {
		url, _ := doc["url"].(string)
		if url == "" {
			continue
		}
		key := inflight.Key(action, doc.ID())
		if !set.TryAdd(key) {
			continue
		}

		body, err := json.Marshal(map[string]any{"resource": map[string]any{"url": url}})
		if err != nil {
			slog.Error("scheduler: failed to marshal resource message", slog.String("error", err.Error()))
			set.Remove(key)
			continue
		}
		if err := s.Publisher.Publish(ctx, exchange, routingKey, body); err != nil {
			slog.Warn("scheduler: failed to publish, will retry next sweep",
				slog.String("routing_key", routingKey), slog.String("error", err.Error()))
			set.Remove(key)
			continue
		}
		published++
	}
	return published
}

// statusDue reports whether a document is due for (re)crawl: the named
// status field is absent, or its "when" timestamp is at or before since.
func statusDue(d store.Document, statusField string, since time.Time) bool {
	status, ok := d[statusField].(map[string]any)
	if !ok {
		return true
	}
	when, ok := asTime(status["when"])
	if !ok {
		return true
	}
	return !when.After(since)
}

// sortByLastSeenDesc implements spec §4.4's "Article sweeps sort
// last_seen DESC".
func sortByLastSeenDesc(docs []store.Document) []store.Document {
	sorted := append([]store.Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, _ := asTime(sorted[i]["last_seen"])
		tj, _ := asTime(sorted[j]["last_seen"])
		return ti.After(tj)
	})
	return sorted
}

// asTime accepts either a native time.Time — what store/memory keeps, since
// it never serializes documents — or an RFC3339 string, what store/postgres
// always produces: encoding/json has no way to reconstruct a time.Time when
// the destination is interface{} (as every store.Document field is), so a
// value round-tripped through Postgres's JSONB column comes back as a plain
// string even though it was marshaled from a time.Time.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
