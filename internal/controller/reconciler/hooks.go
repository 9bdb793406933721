package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/store"
)

// RegisterArticleScrapeHooks wires the pre_scrape_articles/post_scrape_articles
// pair spec §4.5 describes onto r, keyed at type="scrape", collection="articles".
func RegisterArticleScrapeHooks(r *Reconciler) {
	r.RegisterPreHook("scrape", "articles", preScrapeArticles)
	r.RegisterPostHook("scrape", "articles", postScrapeArticles)
}

// preScrapeArticles assigns a monotonic article_id on first successful
// scrape and upserts the site document the scrape extracted, replacing
// updates["site"] with the stored site's _id. Per spec §4.5, a pre-hook only
// runs when updates is non-empty, and the fields it returns get merged into
// the document update — this hook is itself only meaningful when
// status.ok, since a failed scrape carries no usable site/article metadata.
//
// article_id is gated on doc (the persisted document), not on updates: the
// scrape worker's own output never carries article_id, so gating on updates
// would reassign a fresh id on every redelivery of an already-processed
// scrape message, violating spec §3's "assigned exactly once" invariant.
// entity.Article.HasArticleID/AssignArticleID enforce the once-only rule.
func preScrapeArticles(ctx context.Context, r *Reconciler, doc store.Document, updates map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(updates))
	for k, v := range updates {
		out[k] = v
	}

	article := articleFromDocument(doc)
	if !article.HasArticleID() {
		if id, err := r.Store.NextSeq(ctx, "article_id"); err == nil {
			article.AssignArticleID(id)
			out["article_id"] = *article.ArticleID
		}
	}

	siteRaw, ok := updates["site"]
	if !ok {
		return out, nil
	}
	site, err := decodeSite(siteRaw)
	if err != nil {
		return out, fmt.Errorf("reconciler: pre_scrape_articles: decode site: %w", err)
	}

	if site.IconURL != "" {
		imgID, imgURL, err := r.maybeCrawlImage(ctx, site.IconURL)
		if err != nil {
			return out, fmt.Errorf("reconciler: pre_scrape_articles: maybe_crawl_image: %w", err)
		}
		site.IconResourceID = imgID
		site.IconURL = imgURL
	}

	siteID, err := r.Store.Upsert(ctx, "sites", site.URL, store.Document{
		"name":             site.Name,
		"icon_resource_id": site.IconResourceID,
		"icon_url":         site.IconURL,
	})
	if err != nil {
		return out, fmt.Errorf("reconciler: pre_scrape_articles: upsert site: %w", err)
	}

	out["site"] = siteID
	return out, nil
}

// maybeCrawlImage upserts an image document for iconURL and, if it has no
// contents yet, publishes crawl_image for it — following any redirect
// already recorded for that URL within the image collection, per spec §4.5's
// "follows redirects within the image collection".
func (r *Reconciler) maybeCrawlImage(ctx context.Context, iconURL string) (id int64, resolvedURL string, err error) {
	resolvedURL = iconURL

	if err := entity.NewImage(iconURL).Validate(); err != nil {
		return 0, "", fmt.Errorf("reconciler: pre_scrape_articles: site icon_url: %w", err)
	}

	existing, err := r.Store.FindByURL(ctx, "images", iconURL)
	if err != nil && err != store.ErrNotFound {
		return 0, "", err
	}

	if err == store.ErrNotFound {
		id, err = r.Store.Upsert(ctx, "images", iconURL, store.Document{"url": iconURL})
		if err != nil {
			return 0, "", err
		}
		if pubErr := r.publishCrawlImage(ctx, iconURL); pubErr != nil {
			return id, resolvedURL, pubErr
		}
		return id, resolvedURL, nil
	}

	id = existing.ID()
	if canon, ok := existing["canonical_url"].(string); ok && canon != "" {
		resolvedURL = canon
	}
	if _, hasContents := existing["contents"]; !hasContents {
		if pubErr := r.publishCrawlImage(ctx, resolvedURL); pubErr != nil {
			return id, resolvedURL, pubErr
		}
	}
	return id, resolvedURL, nil
}

func (r *Reconciler) publishCrawlImage(ctx context.Context, url string) error {
	if r.Publisher == nil {
		return nil
	}
	body, err := json.Marshal(map[string]any{"resource": map[string]any{"url": url}})
	if err != nil {
		return err
	}
	return r.Publisher.Publish(ctx, broker.ExchangeImages, "crawl_image", body)
}

// postScrapeArticles publishes the NEW_ARTICLE event spec §4.5 describes,
// stripping _id and contents from the payload.
func postScrapeArticles(ctx context.Context, r *Reconciler, doc store.Document, status entity.CrawlStatus) error {
	if !status.OK || r.Publisher == nil {
		return nil
	}

	payload := doc.Clone()
	delete(payload, "_id")
	delete(payload, "contents")

	body, err := json.Marshal(map[string]any{"type": "NEW_ARTICLE", "payload": payload})
	if err != nil {
		return fmt.Errorf("reconciler: post_scrape_articles: marshal event: %w", err)
	}
	return r.Publisher.Publish(ctx, broker.ExchangeEventStream, "send_event", body)
}

// articleFromDocument loads the one field preScrapeArticles needs to decide
// whether article_id has already been assigned — doc is nil on a document's
// first scrape update, in which case the returned Article correctly reports
// HasArticleID() == false.
func articleFromDocument(doc store.Document) *entity.Article {
	a := &entity.Article{}
	if doc == nil {
		return a
	}
	if id, ok := asInt64(doc["article_id"]); ok {
		a.AssignArticleID(id)
	}
	return a
}

// asInt64 accepts either a native int64 (store/memory's representation) or a
// float64 (what store/postgres's JSONB decode produces for any number, since
// encoding/json always decodes a JSON number into float64 when the
// destination is interface{}).
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// decodeSite accepts either a scrape.Site-shaped map[string]any (the normal
// case, since updates comes off a JSON-decoded broker message) or an
// entity.Site, for callers constructing updates in Go directly (tests).
func decodeSite(raw any) (entity.Site, error) {
	switch v := raw.(type) {
	case map[string]any:
		return entity.Site{
			URL:     stringField(v, "url"),
			Name:    stringField(v, "name"),
			IconURL: stringField(v, "icon_url"),
		}, nil
	case entity.Site:
		return v, nil
	default:
		return entity.Site{}, fmt.Errorf("reconciler: unsupported site value type %T", raw)
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
