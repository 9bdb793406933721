// Package article implements the Article Crawl contract from spec §4.3.
package article

import (
	"context"
	"encoding/json"
	"net/http"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/crawl"
	"pulsefeed/internal/domain/entity"
)

// Subtype republishes a freshly-fetched article's contents for scraping
// under its canonical URL, per spec §4.3: "copy resource, set
// url := canonical_url, attach contents, publish scrape_article{resource}
// on articles. Return {contents: contents}." Grounded on the original
// implementation's ArticleCrawler.crawl (original_source
// backend/renewal_backend/crawlers/article.py), which does the same
// rewrite-and-republish before returning.
type Subtype struct {
	Publisher broker.Publisher
}

// Crawl implements crawl.Subtype.
func (s *Subtype) Crawl(ctx context.Context, resource entity.Resource, contents []byte, _ http.Header) (map[string]any, error) {
	canonicalURL := resource.CanonicalURL
	if canonicalURL == "" {
		canonicalURL = resource.URL
	}

	msg := crawl.ScrapeArticleMessage{
		Resource: crawl.ScrapeArticlePayload{URL: canonicalURL, Contents: string(contents)},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := s.Publisher.Publish(ctx, broker.ExchangeArticles, "scrape_article", body); err != nil {
		return nil, err
	}

	return map[string]any{"contents": string(contents)}, nil
}
