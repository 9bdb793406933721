// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects — Resource and its refinements Feed,
// Article and Image, plus Site, Recsystem, ArticleInteraction and Sequence — along
// with their validation rules and domain-specific errors.
package entity

import "time"

// ArticleMetrics tracks per-article engagement counters fed by ArticleInteraction writes.
type ArticleMetrics struct {
	Likes     int64
	Dislikes  int64
	Bookmarks int64
	Clicks    int64
}

// Article is a crawled/scraped news article. ArticleID is nil until the
// article's first successful scrape assigns it a monotonic sequence value;
// once set it is never changed (see pre_scrape_articles in the reconciler).
type Article struct {
	Resource

	ArticleID *int64

	TimesSeen int64
	LastSeen  time.Time

	ScrapeStatus CrawlStatus
	ScrapeStats  CrawlStats

	Contents string // raw HTML, present after first crawl

	SiteID int64 // references Site.ID; 0 until the scrape pre-hook upserts a site

	Title       string
	Authors     []string
	Summary     string
	Text        string
	PublishDate time.Time
	ImageURL    string
	Keywords    []string

	Metrics ArticleMetrics
}

// NewArticle constructs an article discovered via save_article, defaulting
// Lang to "en" when unset.
func NewArticle(url, lang string) *Article {
	a := &Article{Resource: Resource{URL: url, Lang: lang}}
	a.NormalizeLang()
	return a
}

// HasArticleID reports whether this article has been assigned a monotonic ID.
func (a *Article) HasArticleID() bool {
	return a.ArticleID != nil
}

// AssignArticleID sets the article's ID exactly once; callers must not call
// this more than once per article (the reconciler's pre-hook enforces this by
// only calling it when HasArticleID is false).
func (a *Article) AssignArticleID(id int64) {
	a.ArticleID = &id
}

// Validate checks the article's URL.
func (a *Article) Validate() error {
	return ValidateURL(a.URL)
}
