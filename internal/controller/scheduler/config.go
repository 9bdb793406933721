package scheduler

import (
	"time"

	"pulsefeed/pkg/config"
)

// Config holds the three refresh rates spec §6 names under
// "controller.<action>_<resource>_rate" (seconds in the spec, time.Duration
// here).
type Config struct {
	CrawlFeedsRate     time.Duration
	CrawlArticlesRate  time.Duration
	ScrapeArticlesRate time.Duration
}

// DefaultConfig returns the rates the original implementation shipped with:
// feeds crawled hourly, articles crawled every 5 minutes, articles scraped
// every minute (scraping is local parsing, far cheaper than a crawl).
func DefaultConfig() Config {
	return Config{
		CrawlFeedsRate:     time.Hour,
		CrawlArticlesRate:  5 * time.Minute,
		ScrapeArticlesRate: time.Minute,
	}
}

// LoadConfigFromEnv loads Config from CONTROLLER_CRAWL_FEEDS_RATE,
// CONTROLLER_CRAWL_ARTICLES_RATE and CONTROLLER_SCRAPE_ARTICLES_RATE (Go
// duration strings, e.g. "1h"), falling back to DefaultConfig's values for
// anything unset.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		CrawlFeedsRate:     config.GetEnvDuration("CONTROLLER_CRAWL_FEEDS_RATE", def.CrawlFeedsRate),
		CrawlArticlesRate:  config.GetEnvDuration("CONTROLLER_CRAWL_ARTICLES_RATE", def.CrawlArticlesRate),
		ScrapeArticlesRate: config.GetEnvDuration("CONTROLLER_SCRAPE_ARTICLES_RATE", def.ScrapeArticlesRate),
	}
}
