package scrapeworker

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
)

const sampleHTML = `<!DOCTYPE html>
<html><head>
<meta property="og:site_name" content="Example News">
<meta name="keywords" content="go, testing, scraping">
<link rel="icon" href="/favicon.ico">
</head><body>
<article>
<h1>Example Headline</h1>
<p class="byline">By Jane Doe</p>
<p>This is the first paragraph of a long enough article body to satisfy
readability's content heuristics, which otherwise discard short snippets as
boilerplate navigation text rather than genuine article content.</p>
<p>A second paragraph adds more substantive prose so the extracted text
content clears whatever minimum length threshold the readability algorithm
applies when scoring candidate nodes for the main article region.</p>
</article>
</body></html>`

func TestWorker_Handle_PublishesScrapeUpdate(t *testing.T) {
	b := memory.New()
	w := &Worker{Publisher: b}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan broker.Message, 1)
	go func() {
		_ = b.Worker(ctx, broker.ExchangeArticles, "update_article", 1, func(_ context.Context, msg broker.Message) broker.Outcome {
			received <- msg
			return broker.Ack
		})
	}()

	// Wait for the Worker goroutine above to bind its queue before
	// publishing, same as memory_test.go's delivery tests — a direct-exchange
	// publish with no bound queue yet is silently dropped.
	require.Eventually(t, func() bool {
		return b.Publish(ctx, broker.ExchangeArticles, "update_article", nil) == nil
	}, time.Second, 10*time.Millisecond)
	<-received // drain the probe publish above

	in := crawl.ScrapeArticleMessage{
		Resource: crawl.ScrapeArticlePayload{URL: "https://example.com/a/story", Contents: sampleHTML},
	}
	body, err := json.Marshal(in)
	require.NoError(t, err)

	outcome := w.Handle(ctx, broker.Message{Body: body})
	assert.Equal(t, broker.Ack, outcome)

	select {
	case msg := <-received:
		var out crawl.UpdateMessage
		require.NoError(t, json.Unmarshal(msg.Body, &out))
		assert.Equal(t, "scrape", out.Type)
		assert.True(t, out.Status.OK)
		assert.Equal(t, "Example Headline", out.Updates["title"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestWorker_ScrapeArticle_ExtractsMetadata(t *testing.T) {
	w := &Worker{}
	updates, status := w.ScrapeArticle("https://example.com/a/story", sampleHTML)

	require.True(t, status.OK)
	assert.Equal(t, "Example Headline", updates["title"])
	assert.Equal(t, []any{"Jane Doe"}, updates["authors"])

	site, ok := updates["site"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Example News", site["name"])
	assert.Equal(t, "https://example.com/favicon.ico", site["icon_url"])
}

func TestWorker_ScrapeArticle_InvalidURLFails(t *testing.T) {
	w := &Worker{}
	_, status := w.ScrapeArticle("://not-a-url", sampleHTML)

	assert.False(t, status.OK)
	assert.Equal(t, "scrape_error", status.ErrorType)
}

func TestWorker_Handle_MalformedMessageDropped(t *testing.T) {
	w := &Worker{Publisher: memory.New()}
	outcome := w.Handle(context.Background(), broker.Message{Body: []byte("not json")})
	assert.Equal(t, broker.RejectDrop, outcome)
}
