package verifier

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option is how options for the Verifier are set up.
// Options return errors to enable validation during construction.
type Option func(*Verifier) error

// New creates a Verifier.
//
// Required options:
//   - WithKeyFunc: verification key lookup by kid
//   - WithProjectID, or both WithIssuer and WithAudience
//
// Optional options:
//   - WithIssuerPrefix: prefix of the project issuer (default: DefaultIssuerPrefix)
//   - WithAllowedClockSkew: tolerance for exp, iat, auth_time and nbf (default: 0)
//   - WithCustomClaims: extra claims decoded and validated after the registered ones
//   - WithClock: clock (default: real clock)
//
// Example:
//
//	v, err := verifier.New(
//	    verifier.WithKeyFunc(keyCache.KeyFunc),
//	    verifier.WithProjectID("my-project"),
//	)
func New(opts ...Option) (*Verifier, error) {
	v := &Verifier{
		issuerPrefix: DefaultIssuerPrefix,
		clock:        clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if v.keyFunc == nil {
		return nil, errors.New("keyFunc is required (use WithKeyFunc)")
	}
	if v.projectID != "" {
		if v.audience == "" {
			v.audience = v.projectID
		}
		if v.issuer == "" {
			v.issuer = v.issuerPrefix + v.projectID
		}
	}
	if v.issuer == "" {
		return nil, errors.New("issuer is required (use WithProjectID or WithIssuer)")
	}
	if v.audience == "" {
		return nil, errors.New("audience is required (use WithProjectID or WithAudience)")
	}

	return v, nil
}

// WithKeyFunc sets the function that provides the key for a kid.
// This is a required option.
func WithKeyFunc(keyFunc KeyFunc) Option {
	return func(v *Verifier) error {
		if keyFunc == nil {
			return errors.New("keyFunc cannot be nil")
		}
		v.keyFunc = keyFunc
		return nil
	}
}

// WithProjectID sets the project the tokens must be issued for. The
// expected audience becomes the project id and the expected issuer the
// issuer prefix followed by the project id.
func WithProjectID(projectID string) Option {
	return func(v *Verifier) error {
		if projectID == "" {
			return errors.New("project ID cannot be empty")
		}
		v.projectID = projectID
		return nil
	}
}

// WithIssuerPrefix sets the prefix combined with the project id.
func WithIssuerPrefix(prefix string) Option {
	return func(v *Verifier) error {
		if _, err := url.Parse(prefix); err != nil || prefix == "" {
			return fmt.Errorf("invalid issuer prefix %q", prefix)
		}
		v.issuerPrefix = prefix
		return nil
	}
}

// WithIssuer sets the expected issuer claim (iss), overriding the one
// derived from the project id.
func WithIssuer(issuerURL string) Option {
	return func(v *Verifier) error {
		if issuerURL == "" {
			return errors.New("issuer cannot be empty")
		}
		if _, err := url.Parse(issuerURL); err != nil {
			return fmt.Errorf("invalid issuer URL: %w", err)
		}
		v.issuer = issuerURL
		return nil
	}
}

// WithAudience sets the expected audience claim (aud), overriding the
// project id.
func WithAudience(audience string) Option {
	return func(v *Verifier) error {
		if audience == "" {
			return errors.New("audience cannot be empty")
		}
		v.audience = audience
		return nil
	}
}

// WithAllowedClockSkew sets the allowed clock skew for time-based claims.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(v *Verifier) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		v.allowedClockSkew = skew
		return nil
	}
}

// WithCustomClaims sets a function that returns a CustomClaims object
// for unmarshalling and validation.
func WithCustomClaims(f func() CustomClaims) Option {
	return func(v *Verifier) error {
		if f == nil {
			return errors.New("custom claims function cannot be nil")
		}
		v.customClaims = f
		return nil
	}
}

// WithClock sets the clock used for time-based claims.
func WithClock(clock clockwork.Clock) Option {
	return func(v *Verifier) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		v.clock = clock
		return nil
	}
}
