// Package feed implements the Feed Crawl contract from spec §4.3.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/crawl"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/feedparse"
)

// Subtype parses a feed's contents and publishes a save_article message per
// entry with a link, per spec §4.3's Feed Crawl contract. It never returns
// store updates of its own — language/entry handling is entirely a matter of
// downstream save_article messages.
type Subtype struct {
	Publisher broker.Publisher
}

// Crawl implements crawl.Subtype.
func (s *Subtype) Crawl(ctx context.Context, resource entity.Resource, contents []byte, _ http.Header) (map[string]any, error) {
	parsed, err := feedparse.ParseFeed(contents)
	if err != nil {
		return nil, err
	}

	lang := resource.Lang
	if lang == "" {
		lang = entity.DefaultLang
	}
	if len(parsed.Language) >= 2 {
		lang = strings.ToLower(parsed.Language[:2])
	}

	var firstErr error
	for _, entry := range parsed.Entries {
		msg := crawl.SaveArticleMessage{Article: crawl.SaveArticlePayload{URL: entry.Link, Lang: lang}}
		body, err := json.Marshal(msg)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.Publisher.Publish(ctx, broker.ExchangeArticles, "save_article", body); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return map[string]any{}, firstErr
}
