package core

import (
	"errors"
)

// Option is a function that configures the Core.
// Options return errors to enable validation during construction.
type Option func(*Core) error

// New creates a new Core instance with the provided options.
//
// The Core must be configured with a Verifier using WithVerifier.
//
// Example:
//
//	guard, err := core.New(
//	    core.WithVerifier(v),
//	    core.WithCredentialsOptional(true),
//	    core.WithLogger(slog.Default()),
//	)
func New(opts ...Option) (*Core, error) {
	c := &Core{
		credentialsOptional: false,
		logger:              NopLogger{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.verifier == nil {
		return nil, NewError(
			ErrorCodeConfigInvalid,
			"verifier is required but not set (use WithVerifier option)",
			nil,
		)
	}

	return c, nil
}

// WithVerifier sets the verifier for the Core. This is a required option.
func WithVerifier(verifier Verifier) Option {
	return func(c *Core) error {
		if verifier == nil {
			return errors.New("verifier cannot be nil")
		}
		c.verifier = verifier
		return nil
	}
}

// WithCredentialsOptional configures whether credentials are optional.
//
// When set to true, requests without tokens proceed without verification and
// no claims are stored. When false (default), they fail with ErrTokenMissing.
func WithCredentialsOptional(optional bool) Option {
	return func(c *Core) error {
		c.credentialsOptional = optional
		return nil
	}
}

// WithLogger sets an optional logger for the Core.
func WithLogger(logger Logger) Option {
	return func(c *Core) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}
