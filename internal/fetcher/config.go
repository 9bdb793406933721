package fetcher

import (
	"fmt"
	"time"

	"pulsefeed/pkg/config"
)

// Config controls Fetch's HTTP and security behavior. Mirrors the teacher's
// ContentFetchConfig (internal/infra/fetcher.ContentFetchConfig), trimmed to
// the knobs spec §4.2/§6 actually name plus the SSRF hardening the teacher
// already carries (DenyPrivateIPs, MaxBodySize, MaxRedirects — ambient
// additions the distilled spec's Non-goals don't exclude).
type Config struct {
	// RetrieveTimeout bounds a single Fetch call. Spec §6: crawler.retrieve_timeout.
	RetrieveTimeout time.Duration

	// CanonicalURLQueryExclude lists shell-glob patterns of query parameter
	// names stripped when computing canonical_url. Spec §6:
	// crawler.canonical_url.query_exclude, default ["utm_*"].
	CanonicalURLQueryExclude []string

	// MaxBodySize caps the response body Fetch will read, in bytes.
	MaxBodySize int64

	// MaxRedirects caps the redirect chain net/http.Client will follow.
	MaxRedirects int

	// DenyPrivateIPs blocks requests whose hostname resolves to a
	// private/loopback/link-local address (SSRF prevention).
	DenyPrivateIPs bool

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		RetrieveTimeout:          10 * time.Second,
		CanonicalURLQueryExclude: append([]string(nil), DefaultQueryExclude...),
		MaxBodySize:              10 * 1024 * 1024,
		MaxRedirects:             5,
		DenyPrivateIPs:           true,
		UserAgent:                "PulseFeedBot/1.0",
	}
}

// LoadConfigFromEnv loads Config from environment variables, falling back to
// DefaultConfig for anything unset, then validates the result. Grounded on
// the teacher's fetcher.LoadConfigFromEnv.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.RetrieveTimeout = config.GetEnvDuration("FETCHER_RETRIEVE_TIMEOUT", cfg.RetrieveTimeout)
	cfg.CanonicalURLQueryExclude = config.GetEnvStringList("FETCHER_CANONICAL_URL_QUERY_EXCLUDE", cfg.CanonicalURLQueryExclude)
	cfg.MaxBodySize = int64(config.GetEnvInt("FETCHER_MAX_BODY_SIZE", int(cfg.MaxBodySize)))
	cfg.MaxRedirects = config.GetEnvInt("FETCHER_MAX_REDIRECTS", cfg.MaxRedirects)
	cfg.DenyPrivateIPs = config.GetEnvBool("FETCHER_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)
	cfg.UserAgent = config.GetEnvString("FETCHER_USER_AGENT", cfg.UserAgent)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("fetcher: invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would defeat the fetcher's resource
// limits or security guarantees.
func (c Config) Validate() error {
	if c.RetrieveTimeout <= 0 {
		return fmt.Errorf("retrieve timeout must be positive, got %v", c.RetrieveTimeout)
	}
	if c.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive, got %d", c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	return nil
}
