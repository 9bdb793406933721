package metrics

import (
	"strconv"
	"time"
)

// RecordArticlesFetched records the number of entries discovered from a feed.
func RecordArticlesFetched(feedURL string, feedID int64, count int) {
	ArticlesFetchedTotal.WithLabelValues(feedURL, formatID(feedID)).Add(float64(count))
}

// RecordFeedCrawl records metrics for a feed crawl operation.
func RecordFeedCrawl(feedID int64, duration time.Duration, entriesFound int64) {
	FeedCrawlDuration.WithLabelValues(formatID(feedID)).Observe(duration.Seconds())
	if entriesFound > 0 {
		RecordArticlesFetched("", feedID, int(entriesFound))
	}
}

// RecordFeedCrawlError records an error during feed crawling.
func RecordFeedCrawlError(feedID int64, errorType string) {
	FeedCrawlErrors.WithLabelValues(formatID(feedID), errorType).Inc()
}

// UpdateArticlesTotal updates the total count of articles in the store.
func UpdateArticlesTotal(count int) {
	ArticlesTotal.Set(float64(count))
}

// UpdateFeedsTotal updates the total count of registered feeds.
func UpdateFeedsTotal(count int) {
	FeedsTotal.Set(float64(count))
}

// RecordContentFetchSuccess records a successful resource fetch.
func RecordContentFetchSuccess(kind string, duration time.Duration, size int) {
	ContentFetchAttemptsTotal.WithLabelValues(kind, "success").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
	ContentFetchSize.Observe(float64(size))
}

// RecordContentFetchFailed records a failed resource fetch.
func RecordContentFetchFailed(kind string, duration time.Duration) {
	ContentFetchAttemptsTotal.WithLabelValues(kind, "failure").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
}

// RecordContentFetchNotModified records a conditional GET that returned 304.
func RecordContentFetchNotModified(kind string) {
	ContentFetchAttemptsTotal.WithLabelValues(kind, "not_modified").Inc()
}

// RecordDBQuery records the duration of a database query operation.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// SetInFlightResources sets the in-flight gauge for a given crawl action kind.
func SetInFlightResources(kind string, count int) {
	InFlightResourcesGauge.WithLabelValues(kind).Set(float64(count))
}

// RecordReconcileUpdate records the outcome of one update_resource reconciliation.
func RecordReconcileUpdate(kind, outcome string) {
	ReconcileUpdatesTotal.WithLabelValues(kind, outcome).Inc()
}

// SetEventStreamConnectedRecsystems sets the number of connected recsystems.
func SetEventStreamConnectedRecsystems(count int) {
	EventStreamConnectedRecsystems.Set(float64(count))
}

// RecordEventDelivered records one event delivered to a recsystem.
func RecordEventDelivered(eventType string) {
	EventStreamEventsDeliveredTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records one event dropped due to a full backlog.
func RecordEventDropped(eventType string) {
	EventStreamEventsDroppedTotal.WithLabelValues(eventType).Inc()
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
