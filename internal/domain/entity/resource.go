// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects — Resource and its refinements Feed,
// Article and Image, plus Site, Recsystem, ArticleInteraction and Sequence — along
// with their validation rules and domain-specific errors.
package entity

import "time"

// DefaultLang is the two-letter language code assumed when a resource doesn't
// specify one.
const DefaultLang = "en"

// CacheControl mirrors the conditional-GET bookkeeping a resource carries
// between crawls: an ETag, a Last-Modified timestamp, or — failing both — the
// SHA-1 of the last fetched body so the fetcher can still detect "unchanged"
// responses from servers that send neither header.
type CacheControl struct {
	ETag         string
	LastModified time.Time
	SHA1         string // hex-40, fallback when the server sends no validator
}

// CrawlStatus is the tagged-variant outcome of the most recent crawl attempt:
// either a timestamped success, or a timestamped failure carrying an error
// classification and message.
type CrawlStatus struct {
	OK        bool
	ErrorType string
	Error     string
	When      time.Time
}

// Success reports a crawl succeeding at the given time.
func Success(when time.Time) CrawlStatus {
	return CrawlStatus{OK: true, When: when}
}

// Failure reports a crawl failing at the given time with a classified error.
func Failure(errorType, message string, when time.Time) CrawlStatus {
	return CrawlStatus{OK: false, ErrorType: errorType, Error: message, When: when}
}

// CrawlStats accumulates running success/error counters and the timestamps of
// the most recent success and error, independent of the current CrawlStatus.
type CrawlStats struct {
	LastSuccess  time.Time
	LastError    time.Time
	SuccessCount int64
	ErrorCount   int64
}

// Observe folds a CrawlStatus into the running stats, bumping the matching
// counter and timestamp.
func (s *CrawlStats) Observe(status CrawlStatus) {
	if status.OK {
		s.SuccessCount++
		s.LastSuccess = status.When
		return
	}
	s.ErrorCount++
	s.LastError = status.When
}

// Resource is the shared identity and crawl bookkeeping every crawlable
// document carries — Feed, Article and Image all embed it. Resource is never
// persisted on its own; it is always embedded in a concrete refinement.
type Resource struct {
	ID           int64
	URL          string
	CanonicalURL string
	Lang         string
	Cache        CacheControl
	Status       CrawlStatus
	Stats        CrawlStats
}

// IsRedirect reports whether this resource's URL differs from its canonical
// URL. A redirecting resource is never itself enqueued for crawling; its
// canonical URL names the document that is the actual crawl target.
func (r *Resource) IsRedirect() bool {
	return r.CanonicalURL != "" && r.CanonicalURL != r.URL
}

// NormalizeLang fills in the default language code if none was set.
func (r *Resource) NormalizeLang() {
	if r.Lang == "" {
		r.Lang = DefaultLang
	}
}
