package svcauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/assertion"
	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/keys"
	"github.com/svcauth/go-svcauth/token"
	"github.com/svcauth/go-svcauth/verifier"
)

// Option configures the Client.
// Returns error for validation failures.
type Option func(*Client) error

// config holds the settings the components are built from.
type config struct {
	certSource      certificate.Source
	tokenURL        string
	scopes          []string
	lifetime        time.Duration
	expiryMargin    time.Duration
	exchanger       token.Exchanger
	customExchanger token.Exchanger
	store           token.Store

	projectID     string
	publicKeyURL  string
	clockSkew     time.Duration
	customClaims  func() verifier.CustomClaims
	bgKeyRefresh  bool
	minKeyRefresh time.Duration

	httpClient *http.Client
	clock      clockwork.Clock
}

// New constructs a Client from the supplied options.
//
// Issuance is enabled by WithCertificateSource (or WithTokenCache);
// verification by WithProjectID (or WithVerifier). The public-key
// operations are always available.
//
// Example:
//
//	client, err := svcauth.New(
//	    svcauth.WithCertificateSource(source),
//	    svcauth.WithProjectID("my-project"),
//	    svcauth.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create client: %v", err)
//	}
func New(opts ...Option) (*Client, error) {
	c := &Client{
		cfg: &config{
			tokenURL:      DefaultTokenURL,
			scopes:        []string{DefaultScope},
			lifetime:      token.DefaultLifetime,
			expiryMargin:  token.DefaultExpiryMargin,
			publicKeyURL:  keys.SecureTokenURL,
			bgKeyRefresh:  true,
			minKeyRefresh: keys.DefaultMinRefreshInterval,
			httpClient:    &http.Client{Timeout: 30 * time.Second},
			clock:         clockwork.NewRealClock(),
		},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	c.applyDefaults()

	if err := c.createTokenCache(); err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	if err := c.createKeyCache(); err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}
	if err := c.createVerifier(); err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	c.cfg = nil
	return c, nil
}

// applyDefaults sets default values for optional fields not set by options
func (c *Client) applyDefaults() {
	if c.logger == nil {
		c.logger = core.NopLogger{}
	}
	if c.metrics == nil {
		c.metrics = &NoopMetrics{}
	}
	if c.tracer == nil {
		c.tracer = &NoopTracer{}
	}
}

func (c *Client) createTokenCache() error {
	cfg := c.cfg
	if c.tokens != nil || cfg.certSource == nil {
		return nil
	}

	builder, err := assertion.New(
		assertion.WithAudience(cfg.tokenURL),
		assertion.WithScopes(cfg.scopes...),
		assertion.WithLifetime(cfg.lifetime),
		assertion.WithClock(cfg.clock),
	)
	if err != nil {
		return err
	}

	exchanger := cfg.exchanger
	if exchanger == nil {
		exchanger, err = token.NewHTTPExchanger(
			cfg.tokenURL,
			token.WithHTTPClient(cfg.httpClient),
			token.WithExchangeClock(cfg.clock),
		)
		if err != nil {
			return err
		}
	}

	cacheOpts := []token.Option{
		token.WithBuilder(builder),
		token.WithCertificateSource(cfg.certSource),
		token.WithExchanger(exchanger),
		token.WithLifetime(cfg.lifetime),
		token.WithExpiryMargin(cfg.expiryMargin),
		token.WithClock(cfg.clock),
		token.WithLogger(c.logger),
	}
	if cfg.customExchanger != nil {
		cacheOpts = append(cacheOpts, token.WithCustomExchanger(cfg.customExchanger))
	}
	if cfg.store != nil {
		cacheOpts = append(cacheOpts, token.WithStore(cfg.store))
	}

	c.tokens, err = token.NewCache(cacheOpts...)
	return err
}

func (c *Client) createKeyCache() error {
	cfg := c.cfg
	if c.keys != nil {
		return nil
	}

	var err error
	c.keys, err = keys.New(
		keys.WithURL(cfg.publicKeyURL),
		keys.WithHTTPClient(cfg.httpClient),
		keys.WithBackgroundRefresh(cfg.bgKeyRefresh),
		keys.WithMinRefreshInterval(cfg.minKeyRefresh),
		keys.WithClock(cfg.clock),
		keys.WithLogger(c.logger),
	)
	return err
}

func (c *Client) createVerifier() error {
	cfg := c.cfg
	if c.verifier != nil || cfg.projectID == "" {
		return nil
	}

	verifierOpts := []verifier.Option{
		verifier.WithKeyFunc(c.keys.KeyFunc),
		verifier.WithProjectID(cfg.projectID),
		verifier.WithAllowedClockSkew(cfg.clockSkew),
		verifier.WithClock(cfg.clock),
	}
	if cfg.customClaims != nil {
		verifierOpts = append(verifierOpts, verifier.WithCustomClaims(cfg.customClaims))
	}

	var err error
	c.verifier, err = verifier.New(verifierOpts...)
	return err
}

// WithCertificateSource sets the source of the service-account
// certificate and enables token issuance.
func WithCertificateSource(source certificate.Source) Option {
	return func(c *Client) error {
		if source == nil {
			return ErrCertificateSourceNil
		}
		c.cfg.certSource = source
		return nil
	}
}

// WithTokenURL sets the token endpoint assertions are addressed to and
// exchanged at.
//
// Default: DefaultTokenURL
func WithTokenURL(tokenURL string) Option {
	return func(c *Client) error {
		if tokenURL == "" {
			return errors.New("token URL cannot be empty")
		}
		c.cfg.tokenURL = tokenURL
		return nil
	}
}

// WithScopes sets the scopes requested for access tokens.
//
// Default: DefaultScope
func WithScopes(scopes ...string) Option {
	return func(c *Client) error {
		if len(scopes) == 0 {
			return errors.New("scopes cannot be empty")
		}
		c.cfg.scopes = scopes
		return nil
	}
}

// WithTokenLifetime sets the lifetime of built assertions.
//
// Default: 1 hour
func WithTokenLifetime(lifetime time.Duration) Option {
	return func(c *Client) error {
		if lifetime <= 0 {
			return errors.New("token lifetime must be positive")
		}
		c.cfg.lifetime = lifetime
		return nil
	}
}

// WithExpiryMargin sets how long before expiry a cached access token is
// replaced.
//
// Default: 1 minute
func WithExpiryMargin(margin time.Duration) Option {
	return func(c *Client) error {
		if margin < 0 {
			return errors.New("expiry margin cannot be negative")
		}
		c.cfg.expiryMargin = margin
		return nil
	}
}

// WithExchanger replaces the HTTP token exchanger, typically with a
// tokentest.Exchanger in tests.
func WithExchanger(exchanger token.Exchanger) Option {
	return func(c *Client) error {
		if exchanger == nil {
			return ErrExchangerNil
		}
		c.cfg.exchanger = exchanger
		return nil
	}
}

// WithCustomExchanger sets the exchanger used for custom tokens.
//
// Default: the access-token exchanger
func WithCustomExchanger(exchanger token.Exchanger) Option {
	return func(c *Client) error {
		if exchanger == nil {
			return ErrExchangerNil
		}
		c.cfg.customExchanger = exchanger
		return nil
	}
}

// WithTokenStore sets where the cached access token is kept, e.g. a
// token.RedisStore shared between processes.
//
// Default: in-memory
func WithTokenStore(store token.Store) Option {
	return func(c *Client) error {
		if store == nil {
			return errors.New("token store cannot be nil")
		}
		c.cfg.store = store
		return nil
	}
}

// WithTokenCache injects a preconfigured access-token cache. The issuance
// options above are ignored when it is set.
func WithTokenCache(cache *token.Cache) Option {
	return func(c *Client) error {
		if cache == nil {
			return errors.New("token cache cannot be nil")
		}
		c.tokens = cache
		return nil
	}
}

// WithProjectID sets the project identity tokens must be issued for and
// enables verification.
func WithProjectID(projectID string) Option {
	return func(c *Client) error {
		if projectID == "" {
			return errors.New("project ID cannot be empty")
		}
		c.cfg.projectID = projectID
		return nil
	}
}

// WithPublicKeyURL sets the endpoint serving the token signing keys.
//
// Default: keys.SecureTokenURL
func WithPublicKeyURL(publicKeyURL string) Option {
	return func(c *Client) error {
		if publicKeyURL == "" {
			return errors.New("public key URL cannot be empty")
		}
		c.cfg.publicKeyURL = publicKeyURL
		return nil
	}
}

// WithBackgroundKeyRefresh toggles refreshing the key set before it
// expires.
//
// Default: true
func WithBackgroundKeyRefresh(enabled bool) Option {
	return func(c *Client) error {
		c.cfg.bgKeyRefresh = enabled
		return nil
	}
}

// WithMinKeyRefreshInterval sets how old the key set must be before an
// unknown key id triggers another fetch.
//
// Default: keys.DefaultMinRefreshInterval
func WithMinKeyRefreshInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval < 0 {
			return errors.New("minimum key refresh interval cannot be negative")
		}
		c.cfg.minKeyRefresh = interval
		return nil
	}
}

// WithKeyCache injects a preconfigured public-key cache.
func WithKeyCache(cache *keys.Cache) Option {
	return func(c *Client) error {
		if cache == nil {
			return errors.New("key cache cannot be nil")
		}
		c.keys = cache
		return nil
	}
}

// WithAllowedClockSkew sets the tolerance applied to time-based claims.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(c *Client) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		c.cfg.clockSkew = skew
		return nil
	}
}

// WithCustomClaims sets a constructor for claims validated after the
// registered ones.
func WithCustomClaims(f func() verifier.CustomClaims) Option {
	return func(c *Client) error {
		if f == nil {
			return errors.New("custom claims function cannot be nil")
		}
		c.cfg.customClaims = f
		return nil
	}
}

// WithVerifier injects a preconfigured verifier.
func WithVerifier(v *verifier.Verifier) Option {
	return func(c *Client) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		c.verifier = v
		return nil
	}
}

// WithHTTPClient sets the HTTP client for the token and public-key
// endpoints.
//
// Default: &http.Client{Timeout: 30 * time.Second}
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		c.cfg.httpClient = client
		return nil
	}
}

// WithClock sets the clock shared by every component.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		c.cfg.clock = clock
		return nil
	}
}

// WithLogger sets the logger passed to every component.
//
// Example:
//
//	client, err := svcauth.New(
//	    svcauth.WithProjectID("my-project"),
//	    svcauth.WithLogger(slog.Default()),
//	)
func WithLogger(logger Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return ErrLoggerNil
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink.
//
// Default: NoopMetrics
func WithMetrics(metrics Metrics) Option {
	return func(c *Client) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		c.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer.
//
// Default: NoopTracer
func WithTracer(tracer Tracer) Option {
	return func(c *Client) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// Sentinel errors for configuration validation
var (
	ErrCertificateSourceNil = errors.New("certificate source cannot be nil")
	ErrExchangerNil         = errors.New("exchanger cannot be nil")
	ErrLoggerNil            = errors.New("logger cannot be nil")
)
