package svcgin

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/core"
)

// Option configures the middleware.
type Option func(*middlewareConfig) error

// WithVerifier sets the identity-token verifier (REQUIRED).
func WithVerifier(v core.Verifier) Option {
	return func(config *middlewareConfig) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		config.verifier = v
		return nil
	}
}

// WithErrorHandler sets a custom error handler. It must abort the context.
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(config *middlewareConfig) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		config.errorHandler = handler
		return nil
	}
}

// WithClaimsKey sets the gin.Context key the claims are stored under.
func WithClaimsKey(key string) Option {
	return func(config *middlewareConfig) error {
		if key == "" {
			return errors.New("claims key cannot be empty")
		}
		config.contextKey = key
		return nil
	}
}

// WithTokenExtractor sets the function reading the token from the request.
func WithTokenExtractor(extractor svcauth.TokenExtractor) Option {
	return func(config *middlewareConfig) error {
		if extractor == nil {
			return errors.New("token extractor cannot be nil")
		}
		config.tokenExtractor = extractor
		return nil
	}
}

// WithCredentialsOptional lets requests without a token through.
func WithCredentialsOptional(optional bool) Option {
	return func(config *middlewareConfig) error {
		config.credentialsOptional = optional
		return nil
	}
}

// WithLogger sets the guard's logger.
func WithLogger(logger core.Logger) Option {
	return func(config *middlewareConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		config.logger = logger
		return nil
	}
}
