package feed

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

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Feed</title>
<language>en-us</language>
<item><title>First</title><link>https://example.com/1</link></item>
<item><title>No Link</title></item>
<item><title>Second</title><link>https://example.com/2</link></item>
</channel></rss>`

func TestCrawl_PublishesSaveArticlePerLinkedEntry(t *testing.T) {
	b := memory.New()
	s := &Subtype{Publisher: b}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan broker.Message, 8)
	go func() {
		_ = b.Worker(ctx, broker.ExchangeArticles, "save_article", 1, func(_ context.Context, msg broker.Message) broker.Outcome {
			received <- msg
			return broker.Ack
		})
	}()
	require.Eventually(t, func() bool {
		return b.Publish(ctx, broker.ExchangeArticles, "save_article", nil) == nil
	}, time.Second, 10*time.Millisecond)
	<-received

	updates, err := s.Crawl(ctx, entity.Resource{URL: "https://example.com/feed"}, []byte(sampleRSS), nil)
	require.NoError(t, err)
	assert.Empty(t, updates)

	var links []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			var m crawl.SaveArticleMessage
			require.NoError(t, json.Unmarshal(msg.Body, &m))
			links = append(links, m.Article.URL)
			assert.Equal(t, "en", m.Article.Lang)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for save_article publish")
		}
	}
	assert.ElementsMatch(t, []string{"https://example.com/1", "https://example.com/2"}, links)
}

func TestCrawl_InvalidFeedErrors(t *testing.T) {
	s := &Subtype{Publisher: memory.New()}
	_, err := s.Crawl(context.Background(), entity.Resource{URL: "https://example.com/feed"}, []byte("not xml"), nil)
	assert.Error(t, err)
}
