package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/assertion"
	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/core"
)

// ============================================================================
// Cache Options
// ============================================================================

// Option is how options for the Cache are set up.
type Option func(*Cache) error

// NewCache creates a token cache.
//
// Required options:
//   - WithBuilder: assertion builder carrying audience and scopes
//   - WithCertificateSource: where the signing certificate comes from
//   - WithExchanger: token endpoint client
//
// Optional options:
//   - WithCustomExchanger: exchanger for custom tokens (default: WithExchanger's)
//   - WithLifetime: assertion lifetime (default: 1 hour)
//   - WithExpiryMargin: stop serving a token this long before expiry (default: 1 minute)
//   - WithStore: token slot (default: in-memory)
//   - WithRefreshTimeout: upper bound for one refresh (default: 30 seconds)
//   - WithClock: clock (default: real clock)
//   - WithLogger: logger (default: no-op)
func NewCache(opts ...Option) (*Cache, error) {
	c := &Cache{
		lifetime:       DefaultLifetime,
		margin:         DefaultExpiryMargin,
		refreshTimeout: defaultTimeout,
		store:          NewMemoryStore(),
		clock:          clockwork.NewRealClock(),
		logger:         core.NopLogger{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if c.builder == nil {
		return nil, errors.New("assertion builder is required (use WithBuilder)")
	}
	if c.certs == nil {
		return nil, errors.New("certificate source is required (use WithCertificateSource)")
	}
	if c.exchanger == nil {
		return nil, errors.New("exchanger is required (use WithExchanger)")
	}
	if c.customExchanger == nil {
		c.customExchanger = c.exchanger
	}

	return c, nil
}

// WithBuilder sets the assertion builder.
func WithBuilder(builder *assertion.Builder) Option {
	return func(c *Cache) error {
		if builder == nil {
			return errors.New("assertion builder cannot be nil")
		}
		c.builder = builder
		return nil
	}
}

// WithCertificateSource sets where the signing certificate is read from on
// every refresh.
func WithCertificateSource(source certificate.Source) Option {
	return func(c *Cache) error {
		if source == nil {
			return errors.New("certificate source cannot be nil")
		}
		c.certs = source
		return nil
	}
}

// WithExchanger sets the exchanger used for service access tokens.
func WithExchanger(exchanger Exchanger) Option {
	return func(c *Cache) error {
		if exchanger == nil {
			return errors.New("exchanger cannot be nil")
		}
		c.exchanger = exchanger
		return nil
	}
}

// WithCustomExchanger sets the exchanger used for custom tokens.
func WithCustomExchanger(exchanger Exchanger) Option {
	return func(c *Cache) error {
		if exchanger == nil {
			return errors.New("custom exchanger cannot be nil")
		}
		c.customExchanger = exchanger
		return nil
	}
}

// WithLifetime sets the lifetime of signed assertions, a whole number of
// seconds no longer than assertion.MaxLifetime.
func WithLifetime(lifetime time.Duration) Option {
	return func(c *Cache) error {
		if err := assertion.ValidateLifetime(lifetime); err != nil {
			return err
		}
		c.lifetime = lifetime
		return nil
	}
}

// WithExpiryMargin sets how long before expiry the cached token is
// considered stale.
func WithExpiryMargin(margin time.Duration) Option {
	return func(c *Cache) error {
		if margin < 0 {
			return errors.New("expiry margin cannot be negative")
		}
		c.margin = margin
		return nil
	}
}

// WithStore sets the token slot.
func WithStore(store Store) Option {
	return func(c *Cache) error {
		if store == nil {
			return errors.New("store cannot be nil")
		}
		c.store = store
		return nil
	}
}

// WithRefreshTimeout bounds a single refresh, independent of the context of
// the caller that started it.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Cache) error {
		if timeout <= 0 {
			return errors.New("refresh timeout must be positive")
		}
		c.refreshTimeout = timeout
		return nil
	}
}

// WithClock sets the clock used for freshness checks.
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

// ============================================================================
// Exchanger Options
// ============================================================================

// ExchangerOption is how options for the HTTPExchanger are set up.
type ExchangerOption func(*HTTPExchanger) error

// WithHTTPClient sets the HTTP client used to reach the token endpoint. Its
// Timeout bounds every exchange.
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *HTTPExchanger) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		e.client = client
		return nil
	}
}

// WithGrantType overrides the grant_type form value.
func WithGrantType(grantType string) ExchangerOption {
	return func(e *HTTPExchanger) error {
		if grantType == "" {
			return errors.New("grant type cannot be empty")
		}
		e.grantType = grantType
		return nil
	}
}

// WithExchangeClock sets the clock used to turn expires_in into ExpiresAt.
func WithExchangeClock(clock clockwork.Clock) ExchangerOption {
	return func(e *HTTPExchanger) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		e.clock = clock
		return nil
	}
}
