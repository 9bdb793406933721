package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordArticlesFetched(t *testing.T) {
	tests := []struct {
		name    string
		feedURL string
		feedID  int64
		count   int
	}{
		{name: "single entry", feedURL: "https://example.com/feed.xml", feedID: 1, count: 1},
		{name: "multiple entries", feedURL: "https://other.example/rss", feedID: 2, count: 10},
		{name: "zero entries", feedURL: "https://empty.example/rss", feedID: 3, count: 0},
		{name: "empty feed url", feedURL: "", feedID: 4, count: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordArticlesFetched(tt.feedURL, tt.feedID, tt.count)
			})
		})
	}
}

func TestRecordFeedCrawl(t *testing.T) {
	tests := []struct {
		name         string
		feedID       int64
		duration     time.Duration
		entriesFound int64
	}{
		{name: "successful crawl", feedID: 1, duration: 2 * time.Second, entriesFound: 10},
		{name: "empty crawl", feedID: 2, duration: 500 * time.Millisecond, entriesFound: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordFeedCrawl(tt.feedID, tt.duration, tt.entriesFound)
			})
		})
	}
}

func TestRecordFeedCrawlError(t *testing.T) {
	tests := []struct {
		name      string
		feedID    int64
		errorType string
	}{
		{name: "fetch failed", feedID: 1, errorType: "fetch_failed"},
		{name: "parse error", feedID: 2, errorType: "parse_error"},
		{name: "timeout", feedID: 3, errorType: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordFeedCrawlError(tt.feedID, tt.errorType)
			})
		})
	}
}

func TestUpdateArticlesTotal(t *testing.T) {
	for _, count := range []int{0, 100, 10000} {
		assert.NotPanics(t, func() {
			UpdateArticlesTotal(count)
		})
	}
}

func TestUpdateFeedsTotal(t *testing.T) {
	for _, count := range []int{0, 10, 100} {
		assert.NotPanics(t, func() {
			UpdateFeedsTotal(count)
		})
	}
}

func TestRecordContentFetchOutcomes(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordContentFetchSuccess("article", 50*time.Millisecond, 2048)
		RecordContentFetchFailed("feed", 10*time.Millisecond)
		RecordContentFetchNotModified("image")
	})
}

func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		duration  time.Duration
	}{
		{name: "select query", operation: "select_articles", duration: 10 * time.Millisecond},
		{name: "insert query", operation: "insert_article", duration: 5 * time.Millisecond},
		{name: "slow query", operation: "complex_join", duration: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordDBQuery(tt.operation, tt.duration)
			})
		})
	}
}

func TestUpdateDBConnectionStats(t *testing.T) {
	tests := []struct {
		name   string
		active int
		idle   int
	}{
		{name: "no connections", active: 0, idle: 0},
		{name: "some active", active: 5, idle: 10},
		{name: "all active", active: 25, idle: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				UpdateDBConnectionStats(tt.active, tt.idle)
			})
		})
	}
}

func TestSetInFlightResources(t *testing.T) {
	assert.NotPanics(t, func() {
		SetInFlightResources("crawl_feed", 3)
		SetInFlightResources("scrape_article", 0)
	})
}

func TestRecordReconcileUpdate(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordReconcileUpdate("article", "applied")
		RecordReconcileUpdate("feed", "redirect")
		RecordReconcileUpdate("image", "error")
	})
}

func TestEventStreamMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		SetEventStreamConnectedRecsystems(4)
		RecordEventDelivered("NEW_ARTICLE")
		RecordEventDropped("NEW_ARTICLE")
	})
}

func TestMetricsFunctions_AllCallable(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordArticlesFetched("https://example.com/feed.xml", 1, 10)
		RecordFeedCrawl(1, 2*time.Second, 10)
		RecordFeedCrawlError(1, "test_error")
		UpdateArticlesTotal(100)
		UpdateFeedsTotal(10)
		RecordContentFetchSuccess("article", 20*time.Millisecond, 1024)
		RecordDBQuery("test_operation", 10*time.Millisecond)
		UpdateDBConnectionStats(5, 10)
		SetInFlightResources("crawl_article", 1)
		RecordReconcileUpdate("article", "applied")
		SetEventStreamConnectedRecsystems(2)
		RecordEventDelivered("NEW_ARTICLE")
		RecordEventDropped("NEW_ARTICLE")
	})
}
