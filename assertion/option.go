package assertion

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option is how options for the Builder are set up.
type Option func(*Builder) error

// New creates a Builder.
//
// Required options:
//   - WithAudience: the token endpoint URL the assertion is addressed to
//
// Optional options:
//   - WithScopes: capabilities requested by service assertions
//   - WithLifetime: default assertion lifetime (default: 1 hour)
//   - WithClock: clock used for iat/exp (default: real clock)
func New(opts ...Option) (*Builder, error) {
	b := &Builder{
		lifetime: DefaultLifetime,
		clock:    clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if b.audience == "" {
		return nil, errors.New("audience is required (use WithAudience)")
	}

	return b, nil
}

// WithAudience sets the aud claim, normally the token endpoint URL.
func WithAudience(audience string) Option {
	return func(b *Builder) error {
		if audience == "" {
			return errors.New("audience cannot be empty")
		}
		if _, err := url.Parse(audience); err != nil {
			return fmt.Errorf("invalid audience URL: %w", err)
		}
		b.audience = audience
		return nil
	}
}

// WithScopes sets the capability strings joined into the scope claim.
func WithScopes(scopes ...string) Option {
	return func(b *Builder) error {
		for i, scope := range scopes {
			if scope == "" {
				return fmt.Errorf("scope at index %d cannot be empty", i)
			}
		}
		b.scopes = append([]string(nil), scopes...)
		return nil
	}
}

// WithLifetime sets the default assertion lifetime.
func WithLifetime(lifetime time.Duration) Option {
	return func(b *Builder) error {
		if err := ValidateLifetime(lifetime); err != nil {
			return err
		}
		b.lifetime = lifetime
		return nil
	}
}

// MaxLifetime is the longest assertion lifetime the token endpoint accepts.
const MaxLifetime = time.Hour

// ValidateLifetime reports whether lifetime can be carried as exp - iat:
// a whole number of seconds in (0, MaxLifetime].
func ValidateLifetime(lifetime time.Duration) error {
	switch {
	case lifetime <= 0:
		return errors.New("lifetime must be positive")
	case lifetime%time.Second != 0:
		return errors.New("lifetime must be a whole number of seconds")
	case lifetime > MaxLifetime:
		return errors.New("lifetime cannot exceed 1 hour")
	}
	return nil
}

// WithClock sets the clock used to stamp iat and exp.
func WithClock(clock clockwork.Clock) Option {
	return func(b *Builder) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		b.clock = clock
		return nil
	}
}

// BuildOption customizes a single Build call.
type BuildOption func(*buildConfig)

type buildConfig struct {
	developerClaims map[string]any
}

// WithDeveloperClaims attaches extra claims to a custom token under the
// "claims" object. Reserved JWT and identity claim names are rejected.
func WithDeveloperClaims(claims map[string]any) BuildOption {
	return func(c *buildConfig) {
		c.developerClaims = claims
	}
}
