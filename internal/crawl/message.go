package crawl

import "pulsefeed/internal/domain/entity"

// These are the wire DTOs for the crawl_<type>/update_<type> broker
// messages spec §6 names, kept distinct from the domain entity.Resource
// type the way the teacher keeps its handler/*/dto.go separate from
// internal/domain/entity — the wire shape is spec's contract, the entity
// shape is ours to evolve.

// ResourceRef identifies a resource document by its URL alone — the shape
// spec's resource-update message body uses for its "resource" field.
type ResourceRef struct {
	URL string `json:"url"`
}

// CrawlMessage is the payload of a crawl_feed/crawl_article/crawl_image
// message: the resource document as currently known to the store.
type CrawlMessage struct {
	Resource ResourceState `json:"resource"`
}

// ResourceState is the subset of entity.Resource carried over the wire for a
// crawl job — everything CrawlResource's Fetch call and cache-control
// bookkeeping need.
type ResourceState struct {
	URL          string              `json:"url"`
	CanonicalURL string              `json:"canonical_url,omitempty"`
	Lang         string              `json:"lang,omitempty"`
	Cache        entity.CacheControl `json:"cache_control"`
}

func (s ResourceState) toEntity() entity.Resource {
	return entity.Resource{URL: s.URL, CanonicalURL: s.CanonicalURL, Lang: s.Lang, Cache: s.Cache}
}

// UpdateMessage is the resource-update message body spec §6 defines:
// {resource: {url}, type: "crawl"|"scrape", status, updates}.
type UpdateMessage struct {
	Resource ResourceRef          `json:"resource"`
	Type     string                `json:"type"`
	Status   entity.CrawlStatus    `json:"status"`
	Updates  map[string]any        `json:"updates"`
}

// SaveArticleMessage is save_article(article) per spec §6.
type SaveArticleMessage struct {
	Article SaveArticlePayload `json:"article"`
}

// SaveArticlePayload is the body of a save_article message: just enough to
// upsert a new article stub, per the Feed Crawl contract (spec §4.3).
type SaveArticlePayload struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

// ScrapeArticleMessage is scrape_article(resource) per spec §6 — the Article
// Crawl contract's publish target, carrying the freshly-fetched contents.
type ScrapeArticleMessage struct {
	Resource ScrapeArticlePayload `json:"resource"`
}

// ScrapeArticlePayload carries the article's (canonical) URL and its raw
// fetched HTML for the scrape worker to parse.
type ScrapeArticlePayload struct {
	URL      string `json:"url"`
	Contents string `json:"contents"`
}
