package fetcher

import (
	"net/url"
	"path"
)

// DefaultQueryExclude is crawler.canonical_url.query_exclude's default from
// spec §4.2 step 7 and §6: strip tracking params like utm_source/utm_medium.
var DefaultQueryExclude = []string{"utm_*"}

// canonicalize strips query parameters whose name matches any of the given
// shell-glob patterns from rawURL, returning the resulting URL string. Used
// to turn a fetch's final (post-redirect) URL into the resource's
// canonical_url.
func canonicalize(rawURL string, queryExclude []string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	for name := range q {
		if matchesAny(name, queryExclude) {
			q.Del(name)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
