// Package crawl implements spec §4.3's generic resource crawler: one
// CrawlResource algorithm shared by every (resourceType, contentType)
// combination, parameterized by a Subtype that knows how to turn freshly
// fetched bytes into store updates and any downstream messages. Grounded on
// the original implementation's ResourceCrawler (original_source
// backend/renewal_backend/crawlers/resource.py), adapted from its
// try/finally status bookkeeping into Go's "guarded block" pattern (a closure
// with a deferred recover, since a panicking Subtype must not crash the
// worker any more than a returned error would) and wired against this
// module's own internal/fetcher and internal/broker instead of aiopika/aiohttp.
package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/fetcher"
	"pulsefeed/internal/observability/metrics"
)

// Subtype implements one resource type's Crawl contract (spec §4.3): turn
// fetched contents into a store-update map, optionally publishing further
// messages of its own.
type Subtype interface {
	Crawl(ctx context.Context, resource entity.Resource, contents []byte, headers http.Header) (map[string]any, error)
}

// Crawler is the generic per-(resourceType) worker: it fetches a resource,
// hands fresh contents to its Subtype, and publishes the resulting
// update_<resourceType> message. One Crawler is instantiated per
// (resourceType, routing key) pair — crawl_feed, crawl_article, crawl_image.
type Crawler struct {
	ResourceType   string // "feed", "article", "image" — spec §4.3
	SourceExchange string // exchange update_<resourceType> is published on
	Fetcher        *fetcher.Fetcher
	Subtype        Subtype
	Publisher      broker.Publisher
}

// Handle adapts CrawlResource to broker.Handler: a malformed message is a
// protocol error (spec §7) and is dropped without requeue; a publish
// failure is transient and is requeued.
func (c *Crawler) Handle(ctx context.Context, msg broker.Message) broker.Outcome {
	var in CrawlMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		slog.Warn("crawl: malformed message, dropping",
			slog.String("resource_type", c.ResourceType), slog.String("error", err.Error()))
		return broker.RejectDrop
	}

	resource := in.Resource.toEntity()
	updates, status := c.CrawlResource(ctx, resource)

	out := UpdateMessage{
		Resource: ResourceRef{URL: resource.URL},
		Type:     "crawl",
		Status:   status,
		Updates:  updates,
	}
	body, err := json.Marshal(out)
	if err != nil {
		slog.Error("crawl: failed to marshal update message", slog.String("error", err.Error()))
		return broker.RejectDrop
	}

	if err := c.Publisher.Publish(ctx, c.SourceExchange, "update_"+c.ResourceType, body); err != nil {
		slog.Warn("crawl: failed to publish update, requeuing",
			slog.String("resource_type", c.ResourceType), slog.String("error", err.Error()))
		return broker.NackRequeue
	}
	return broker.Ack
}

// CrawlResource implements spec §4.3's algorithm: guarded-block 1 fetches
// the resource; if fresh contents came back, guarded-block 2 hands them to
// the Subtype. Neither block ever lets an error escape outward — the outer
// flow always has a final Status to publish.
func (c *Crawler) CrawlResource(ctx context.Context, resource entity.Resource) (map[string]any, entity.CrawlStatus) {
	updates := map[string]any{}

	status1, updated, contents, headers := c.guardedFetch(ctx, resource, updates)
	final := status1
	if contents != nil {
		status2 := c.guardedCrawl(ctx, updated, contents, headers, updates)
		final = status2
	}
	return updates, final
}

func (c *Crawler) guardedFetch(ctx context.Context, resource entity.Resource, updates map[string]any) (status entity.CrawlStatus, updated entity.Resource, contents []byte, headers http.Header) {
	updated = resource
	defer func() {
		if r := recover(); r != nil {
			status = entity.Failure("panic", fmt.Sprint(r), time.Now())
		}
	}()

	start := time.Now()
	fetched, body, h, err := c.Fetcher.Fetch(ctx, resource, true)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordContentFetchFailed(c.ResourceType, duration)
		status = entity.Failure(classifyError(err), err.Error(), time.Now())
		if fetched.CanonicalURL != "" && fetched.CanonicalURL != resource.URL {
			updates["canonical_url"] = fetched.CanonicalURL
		}
		if fetched.Cache != (entity.CacheControl{}) {
			updates["cache_control"] = fetched.Cache
		}
		return status, resource, nil, nil
	}
	if body == nil {
		metrics.RecordContentFetchNotModified(c.ResourceType)
	} else {
		metrics.RecordContentFetchSuccess(c.ResourceType, duration, len(body))
	}

	status = entity.Success(time.Now())
	if fetched.CanonicalURL != "" && fetched.CanonicalURL != resource.URL {
		updates["canonical_url"] = fetched.CanonicalURL
	}
	updates["cache_control"] = fetched.Cache
	return status, fetched, body, h
}

func (c *Crawler) guardedCrawl(ctx context.Context, resource entity.Resource, contents []byte, headers http.Header, updates map[string]any) (status entity.CrawlStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = entity.Failure("panic", fmt.Sprint(r), time.Now())
		}
	}()

	result, err := c.Subtype.Crawl(ctx, resource, contents, headers)
	if err != nil {
		return entity.Failure(classifyError(err), err.Error(), time.Now())
	}
	for k, v := range result {
		updates[k] = v
	}
	return entity.Success(time.Now())
}

func classifyError(err error) string {
	var httpErr *fetcher.HTTPStatusError
	switch {
	case errors.As(err, &httpErr):
		return "http_status"
	case errors.Is(err, fetcher.ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, fetcher.ErrPrivateIP):
		return "private_ip"
	case errors.Is(err, fetcher.ErrTooManyRedirects):
		return "too_many_redirects"
	case errors.Is(err, fetcher.ErrBodyTooLarge):
		return "body_too_large"
	default:
		return "error"
	}
}
