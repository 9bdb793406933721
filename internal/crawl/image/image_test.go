package image

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/domain/entity"
)

func TestCrawl_ReturnsContentsWithNoPublish(t *testing.T) {
	s := &Subtype{}
	updates, err := s.Crawl(context.Background(), entity.Resource{URL: "https://example.com/x.png"}, []byte{0xFF, 0xD8}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, updates["contents"])
}
