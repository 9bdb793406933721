package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/broker/memory"
	"pulsefeed/internal/controller/inflight"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/store"
	storememory "pulsefeed/internal/store/memory"
)

func TestUpdateResource_SuccessAppliesStatusAndStats(t *testing.T) {
	st := storememory.New()
	ctx := context.Background()
	id, err := st.Upsert(ctx, "feeds", "https://a.example/rss", store.Document{"url": "https://a.example/rss"})
	require.NoError(t, err)

	set := &inflight.Set{}
	set.TryAdd(inflight.Key("crawl_feeds", id))

	r := New(st, memory.New(), map[string]*inflight.Set{"crawl_feeds": set})

	status := entity.Success(time.Now())
	err = r.UpdateResource(ctx, "feeds", "https://a.example/rss", "crawl", status, map[string]any{})
	require.NoError(t, err)

	doc, err := st.FindByURL(ctx, "feeds", "https://a.example/rss")
	require.NoError(t, err)
	statusDoc, ok := doc["crawl_status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, statusDoc["ok"])
	assert.Equal(t, int64(1), doc["crawl_stats_success_count"])
	assert.False(t, set.Contains(inflight.Key("crawl_feeds", id)))
}

func TestUpdateResource_NotFoundWarnsAndContinues(t *testing.T) {
	st := storememory.New()
	r := New(st, memory.New(), nil)

	err := r.UpdateResource(context.Background(), "feeds", "https://missing.example/rss", "crawl", entity.Success(time.Now()), nil)
	assert.NoError(t, err)
}

func TestUpdateResource_RedirectUpsertsCanonicalDoc(t *testing.T) {
	st := storememory.New()
	ctx := context.Background()
	_, err := st.Upsert(ctx, "feeds", "https://old.example/rss", store.Document{"url": "https://old.example/rss"})
	require.NoError(t, err)

	r := New(st, memory.New(), nil)
	status := entity.Success(time.Now())
	err = r.UpdateResource(ctx, "feeds", "https://old.example/rss", "crawl", status,
		map[string]any{"canonical_url": "https://new.example/rss"})
	require.NoError(t, err)

	old, err := st.FindByURL(ctx, "feeds", "https://old.example/rss")
	require.NoError(t, err)
	assert.Equal(t, true, old["is_redirect"])
	assert.Equal(t, "https://new.example/rss", old["canonical_url"])

	canon, err := st.FindByURL(ctx, "feeds", "https://new.example/rss")
	require.NoError(t, err)
	assert.Equal(t, false, canon["is_redirect"])
}

func TestUpdateResource_PreHookMergesAndPostHookFires(t *testing.T) {
	st := storememory.New()
	ctx := context.Background()
	_, err := st.Upsert(ctx, "articles", "https://a.example/1", store.Document{"url": "https://a.example/1"})
	require.NoError(t, err)

	set := &inflight.Set{}
	r := New(st, memory.New(), map[string]*inflight.Set{"scrape_articles": set})
	RegisterArticleScrapeHooks(r)

	var postHookCalled bool
	r.RegisterPostHook("scrape", "articles", func(_ context.Context, _ *Reconciler, doc store.Document, status entity.CrawlStatus) error {
		postHookCalled = true
		assert.NotContains(t, doc, "_id")
		return nil
	})

	status := entity.Success(time.Now())
	updates := map[string]any{
		"title": "Hello",
		"site":  map[string]any{"url": "https://a.example", "name": "Example"},
	}
	err = r.UpdateResource(ctx, "articles", "https://a.example/1", "scrape", status, updates)
	require.NoError(t, err)
	assert.True(t, postHookCalled)

	doc, err := st.FindByURL(ctx, "articles", "https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc["title"])
	assert.NotEqual(t, "https://a.example", doc["site"]) // replaced with the site's stored _id
	assert.Contains(t, doc, "article_id")
}

func TestUpdateResource_RedeliveredScrapeDoesNotReassignArticleID(t *testing.T) {
	st := storememory.New()
	ctx := context.Background()
	_, err := st.Upsert(ctx, "articles", "https://a.example/1", store.Document{"url": "https://a.example/1"})
	require.NoError(t, err)

	r := New(st, memory.New(), map[string]*inflight.Set{"scrape_articles": {}})
	RegisterArticleScrapeHooks(r)

	status := entity.Success(time.Now())
	updates := map[string]any{"title": "Hello"}

	require.NoError(t, r.UpdateResource(ctx, "articles", "https://a.example/1", "scrape", status, updates))
	first, err := st.FindByURL(ctx, "articles", "https://a.example/1")
	require.NoError(t, err)
	firstID := first["article_id"]
	require.NotNil(t, firstID)

	// A broker redelivery of the same already-processed update_article
	// message must not mint a second article_id.
	require.NoError(t, r.UpdateResource(ctx, "articles", "https://a.example/1", "scrape", status, updates))
	second, err := st.FindByURL(ctx, "articles", "https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, firstID, second["article_id"])
}

func TestHandle_MalformedMessageDropped(t *testing.T) {
	r := New(storememory.New(), memory.New(), nil)
	outcome := Handle(context.Background(), r, "feeds", broker.Message{Body: []byte("not json")})
	assert.Equal(t, broker.RejectDrop, outcome)
}

func TestHandle_UnknownURLStillAcks(t *testing.T) {
	r := New(storememory.New(), memory.New(), nil)
	body := []byte(`{"resource":{"url":"https://missing.example/rss"},"type":"crawl","status":{"OK":true},"updates":{}}`)
	outcome := Handle(context.Background(), r, "feeds", broker.Message{Body: body})
	assert.Equal(t, broker.Ack, outcome)
}
