// Package feedparse is the pure-function RSS/Atom parsing boundary spec §1
// names explicitly ("feed parsing... treated as a pure function
// ParseFeed(bytes) → []Entry"). It is a thin adapter around
// github.com/mmcdole/gofeed, grounded on the teacher's
// internal/infra/scraper/rss.go — reused for gofeed's parsing only, not its
// HTTP-fetch/circuit-breaker/retry plumbing, since fetching is already
// internal/fetcher's job (spec §4.2) by the time a feed crawl calls this.
package feedparse

import (
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one item in a parsed feed.
type Entry struct {
	Title       string
	Link        string
	PublishedAt time.Time
}

// ParsedFeed is ParseFeed's result: the feed-level language plus its entries.
type ParsedFeed struct {
	Language string
	Entries  []Entry
}

// ParseFeed parses RSS/Atom bytes into a ParsedFeed. It does no network I/O
// and has no side effects — the "pure function" spec §1 calls for.
func ParseFeed(contents []byte) (ParsedFeed, error) {
	feed, err := gofeed.NewParser().ParseString(string(contents))
	if err != nil {
		return ParsedFeed{}, fmt.Errorf("feedparse: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		var publishedAt time.Time
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		}
		entries = append(entries, Entry{
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: publishedAt,
		})
	}

	return ParsedFeed{Language: feed.Language, Entries: entries}, nil
}
