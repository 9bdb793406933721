// Package scrapeworker consumes scrape_article messages and turns an
// already-fetched article's HTML into its parsed metadata. Grounded on the
// original implementation's ArticleScraper (original_source
// backend/renewal_backend/scraper.py), which is its own agent bound to
// scrape_article rather than a ResourceCrawler subclass: it never re-fetches
// over the network, it only parses the contents the message already
// carries. That split is preserved here — this worker has no
// internal/fetcher dependency at all, only internal/scrape's pure function.
package scrapeworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/crawl"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/scrape"
)

// Worker binds scrape_article deliveries to internal/scrape.Scrape and
// republishes the result as update_article{type: "scrape", ...}, per spec
// §4.5's pre_scrape_articles/post_scrape_articles hooks, which key off this
// exact type value.
type Worker struct {
	Publisher broker.Publisher
}

// Handle adapts Scrape to broker.Handler. A malformed message is a protocol
// error (spec §7) and is dropped without requeue; a publish failure is
// transient and is requeued.
func (w *Worker) Handle(ctx context.Context, msg broker.Message) broker.Outcome {
	var in crawl.ScrapeArticleMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		slog.Warn("scrapeworker: malformed message, dropping", slog.String("error", err.Error()))
		return broker.RejectDrop
	}

	updates, status := w.ScrapeArticle(in.Resource.URL, in.Resource.Contents)

	out := crawl.UpdateMessage{
		Resource: crawl.ResourceRef{URL: in.Resource.URL},
		Type:     "scrape",
		Status:   status,
		Updates:  updates,
	}
	body, err := json.Marshal(out)
	if err != nil {
		slog.Error("scrapeworker: failed to marshal update message", slog.String("error", err.Error()))
		return broker.RejectDrop
	}

	if err := w.Publisher.Publish(ctx, broker.ExchangeArticles, "update_article", body); err != nil {
		slog.Warn("scrapeworker: failed to publish update, requeuing", slog.String("error", err.Error()))
		return broker.NackRequeue
	}
	return broker.Ack
}

// ScrapeArticle implements the guarded block spec §4.3 uses elsewhere:
// a panicking or failing Scrape degrades to a Failure status rather than
// crashing the worker or leaving the Crawled→Scraped transition stuck.
func (w *Worker) ScrapeArticle(url, contents string) (updates map[string]any, status entity.CrawlStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = entity.Failure("panic", fmt.Sprint(r), time.Now())
		}
	}()

	meta, err := scrape.Scrape([]byte(contents), url)
	if err != nil {
		return map[string]any{}, entity.Failure("scrape_error", err.Error(), time.Now())
	}

	body, err := json.Marshal(meta)
	if err != nil {
		return map[string]any{}, entity.Failure("scrape_error", err.Error(), time.Now())
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return map[string]any{}, entity.Failure("scrape_error", err.Error(), time.Now())
	}

	return fields, entity.Success(time.Now())
}
