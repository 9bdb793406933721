package article

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/broker/memory"
	"pulsefeed/internal/crawl"
	"pulsefeed/internal/domain/entity"
)

func TestCrawl_PublishesScrapeArticleUnderCanonicalURL(t *testing.T) {
	b := memory.New()
	s := &Subtype{Publisher: b}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan broker.Message, 1)
	go func() {
		_ = b.Worker(ctx, broker.ExchangeArticles, "scrape_article", 1, func(_ context.Context, msg broker.Message) broker.Outcome {
			received <- msg
			return broker.Ack
		})
	}()
	require.Eventually(t, func() bool {
		return b.Publish(ctx, broker.ExchangeArticles, "scrape_article", nil) == nil
	}, time.Second, 10*time.Millisecond)
	<-received

	resource := entity.Resource{URL: "https://example.com/a?utm_source=x", CanonicalURL: "https://example.com/a"}
	updates, err := s.Crawl(ctx, resource, []byte("<html>hi</html>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", updates["contents"])

	select {
	case msg := <-received:
		var m crawl.ScrapeArticleMessage
		require.NoError(t, json.Unmarshal(msg.Body, &m))
		assert.Equal(t, "https://example.com/a", m.Resource.URL)
		assert.Equal(t, "<html>hi</html>", m.Resource.Contents)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scrape_article publish")
	}
}

func TestCrawl_FallsBackToURLWhenNoCanonical(t *testing.T) {
	b := memory.New()
	s := &Subtype{Publisher: b}
	resource := entity.Resource{URL: "https://example.com/a"}
	_, err := s.Crawl(context.Background(), resource, []byte("x"), nil)
	require.NoError(t, err)
}
