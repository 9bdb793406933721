// Package image implements the Image Crawl contract from spec §4.3.
package image

import (
	"context"
	"net/http"

	"pulsefeed/internal/domain/entity"
)

// Subtype just returns the fetched bytes as the store update — images have
// no downstream publish, per spec §4.3: "Image: return {contents: bytes}
// (no downstream publish)."
type Subtype struct{}

// Crawl implements crawl.Subtype.
func (s *Subtype) Crawl(_ context.Context, _ entity.Resource, contents []byte, _ http.Header) (map[string]any, error) {
	return map[string]any{"contents": contents}, nil
}
