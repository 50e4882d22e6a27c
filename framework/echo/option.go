package svcecho

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/core"
)

// Option is a function that configures the middleware
type Option func(*echoMiddlewareConfig) error

// WithVerifier sets the identity-token verifier (REQUIRED).
func WithVerifier(v core.Verifier) Option {
	return func(config *echoMiddlewareConfig) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		config.verifier = v
		return nil
	}
}

// WithErrorHandler sets a custom error handler
func WithErrorHandler(handler ErrorHandler) Option {
	return func(config *echoMiddlewareConfig) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		config.errorHandler = handler
		return nil
	}
}

// WithContextKey sets a custom context key to store claims
func WithContextKey(key string) Option {
	return func(config *echoMiddlewareConfig) error {
		if key == "" {
			return errors.New("context key cannot be empty")
		}
		config.contextKey = key
		return nil
	}
}

// WithTokenExtractor sets a custom token extractor
func WithTokenExtractor(extractor svcauth.TokenExtractor) Option {
	return func(config *echoMiddlewareConfig) error {
		if extractor == nil {
			return errors.New("token extractor cannot be nil")
		}
		config.tokenExtractor = extractor
		return nil
	}
}

func WithCredentialsOptional(optional bool) Option {
	return func(config *echoMiddlewareConfig) error {
		config.credentialsOptional = optional
		return nil
	}
}

// WithSkipper lets requests matching skipper through unverified.
func WithSkipper(skipper func(echo.Context) bool) Option {
	return func(config *echoMiddlewareConfig) error {
		if skipper == nil {
			return errors.New("skipper cannot be nil")
		}
		config.skipper = skipper
		return nil
	}
}

func WithLogger(logger core.Logger) Option {
	return func(config *echoMiddlewareConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		config.logger = logger
		return nil
	}
}
