package fetcher

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fetch operation. These let crawlers (internal/crawl)
// decide requeue vs. drop without parsing error strings, matching spec §4.2's
// "all network and decoding errors propagate as domain errors; callers decide
// requeue vs. drop."
var (
	// ErrInvalidURL indicates the URL is malformed or uses an unsupported scheme.
	ErrInvalidURL = errors.New("fetcher: invalid URL or unsupported scheme")

	// ErrPrivateIP indicates the URL resolves to a private/loopback/link-local
	// address (SSRF prevention).
	ErrPrivateIP = errors.New("fetcher: private IP access denied")

	// ErrTooManyRedirects indicates the redirect chain exceeded MaxRedirects.
	ErrTooManyRedirects = errors.New("fetcher: too many redirects")

	// ErrBodyTooLarge indicates the response body exceeded MaxBodySize.
	ErrBodyTooLarge = errors.New("fetcher: response body too large")

	// ErrInvalidDataURL indicates a data: URL could not be decoded.
	ErrInvalidDataURL = errors.New("fetcher: invalid data URL")
)

// HTTPStatusError is returned when a fetch receives a non-200, non-304
// response, per spec §4.2 step 3 ("On non-200, fail with HTTPStatusError").
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected HTTP status %d fetching %s", e.StatusCode, e.URL)
}
