// Package intake implements the save_article worker spec §4.3/§4.5
// describes: the Feed crawl Subtype publishes one save_article message per
// linked entry, and this worker upserts the corresponding article document
// into the Discovered state (or bumps "times_seen" if it's already known).
// Grounded on the original implementation's Agent.save_article
// (original_source backend/renewal_backend/controller.py): an upsert keyed
// by url, $set-ing url/lang, $inc-ing times_seen, and $currentDate-ing
// last_seen — translated onto store.Store's flat Update.Set/Update.Inc
// shape the same way reconciler.go does.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/crawl"
	"pulsefeed/internal/store"
)

const articlesCollection = "articles"

// SaveArticle upserts url/lang into the articles collection, bumping
// times_seen and last_seen whether the article is new or already known.
func SaveArticle(ctx context.Context, st store.Store, url, lang string) error {
	_, err := st.FindByURL(ctx, articlesCollection, url)
	if err != nil && err != store.ErrNotFound {
		return err
	}

	if err == store.ErrNotFound {
		_, insertErr := st.Upsert(ctx, articlesCollection, url, store.Document{
			"url":        url,
			"lang":       lang,
			"times_seen": int64(1),
			"last_seen":  time.Now(),
		})
		return insertErr
	}

	_, err = st.FindOneAndUpdate(ctx, articlesCollection, url, store.Update{
		Set: map[string]any{"url": url, "lang": lang, "last_seen": time.Now()},
		Inc: map[string]int64{"times_seen": 1},
	})
	return err
}

// Handle adapts SaveArticle to a broker.Handler bound to
// broker.ExchangeArticles / "save_article".
func Handle(st store.Store) broker.Handler {
	return func(ctx context.Context, msg broker.Message) broker.Outcome {
		var in crawl.SaveArticleMessage
		if err := json.Unmarshal(msg.Body, &in); err != nil {
			slog.Warn("intake: malformed save_article message, dropping", slog.String("error", err.Error()))
			return broker.RejectDrop
		}
		if err := SaveArticle(ctx, st, in.Article.URL, in.Article.Lang); err != nil {
			slog.Warn("intake: save_article failed, requeuing", slog.String("error", err.Error()))
			return broker.NackRequeue
		}
		return broker.Ack
	}
}
