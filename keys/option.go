package keys

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/core"
)

// Option is how options for the Cache are set up.
type Option func(*Cache) error

// New creates a public key cache. The first fetch happens on first use.
//
// Exactly one of these is required:
//   - WithURL: public key endpoint
//   - WithIssuerDiscovery: resolve the endpoint from the issuer's discovery document
//
// Optional options:
//   - WithHTTPClient: HTTP client (default: 30s timeout)
//   - WithDefaultTTL: lifetime when the response has no usable max-age (default: 1 hour)
//   - WithMinRefreshInterval: minimum set age before an unknown kid refetches (default: 30 seconds)
//   - WithBackgroundRefresh: refresh at 80% of the lifetime without blocking (default: true)
//   - WithClock: clock (default: real clock)
//   - WithLogger: logger (default: no-op)
//
// Example:
//
//	cache, err := keys.New(
//	    keys.WithURL(keys.SecureTokenURL),
//	    keys.WithLogger(logger),
//	)
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		httpClient:         &http.Client{Timeout: defaultTimeout},
		defaultTTL:         DefaultTTL,
		minRefreshInterval: DefaultMinRefreshInterval,
		backgroundRefresh:  true,
		clock:              clockwork.NewRealClock(),
		logger:             core.NopLogger{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	switch {
	case c.url == "" && c.issuerURL == nil:
		return nil, errors.New("public key URL is required (use WithURL or WithIssuerDiscovery)")
	case c.url != "" && c.issuerURL != nil:
		return nil, errors.New("WithURL and WithIssuerDiscovery are mutually exclusive")
	}

	return c, nil
}

// WithURL sets the public key endpoint.
func WithURL(rawURL string) Option {
	return func(c *Cache) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid public key URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("public key URL must be http or https, got %q", rawURL)
		}
		c.url = u.String()
		return nil
	}
}

// WithIssuerDiscovery resolves the public key endpoint from
// issuerURL/.well-known/openid-configuration on first fetch.
func WithIssuerDiscovery(issuerURL *url.URL) Option {
	return func(c *Cache) error {
		if issuerURL == nil {
			return errors.New("issuer URL cannot be nil")
		}
		c.issuerURL = issuerURL
		return nil
	}
}

// WithHTTPClient sets the HTTP client. Its Timeout bounds every fetch.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithDefaultTTL sets the set lifetime used when the response carries no
// usable Cache-Control max-age.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		if ttl <= 0 {
			return errors.New("default TTL must be positive")
		}
		c.defaultTTL = ttl
		return nil
	}
}

// WithMinRefreshInterval sets how old the key set must be before a lookup
// for an unknown key id fetches again. Zero allows a fetch on every miss.
func WithMinRefreshInterval(interval time.Duration) Option {
	return func(c *Cache) error {
		if interval < 0 {
			return errors.New("minimum refresh interval cannot be negative")
		}
		c.minRefreshInterval = interval
		return nil
	}
}

// WithBackgroundRefresh enables or disables the non-blocking refresh
// started once a set reaches 80% of its lifetime.
func WithBackgroundRefresh(enabled bool) Option {
	return func(c *Cache) error {
		c.backgroundRefresh = enabled
		return nil
	}
}

// WithClock sets the clock used for expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger core.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}
