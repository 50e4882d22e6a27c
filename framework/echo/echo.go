// Package svcecho verifies identity tokens in Echo applications.
package svcecho

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/verifier"
)

// DefaultClaimsKey is the echo.Context key the verified claims are stored
// under.
const DefaultClaimsKey = "svcauth.claims"

var (
	ErrMissingClaims = errors.New("no identity token claims found in context")
	ErrInvalidClaims = errors.New("invalid identity token claims type")
)

// ErrorHandler writes the response for a rejected request. The returned
// error is handed back to Echo.
type ErrorHandler func(echo.Context, error) error

// echoMiddlewareConfig holds all configuration for the middleware
type echoMiddlewareConfig struct {
	verifier            core.Verifier
	errorHandler        ErrorHandler
	contextKey          string
	tokenExtractor      svcauth.TokenExtractor
	credentialsOptional bool
	skipper             func(echo.Context) bool
	logger              core.Logger
}

// New creates an Echo middleware verifying the identity token of every
// request not skipped by WithSkipper.
func New(opts ...Option) (echo.MiddlewareFunc, error) {
	config := &echoMiddlewareConfig{
		errorHandler:   DefaultErrorHandler,
		contextKey:     DefaultClaimsKey,
		tokenExtractor: svcauth.AuthHeaderTokenExtractor,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.verifier == nil {
		return nil, errors.New("verifier is required, use WithVerifier option")
	}

	coreOpts := []core.Option{
		core.WithVerifier(config.verifier),
		core.WithCredentialsOptional(config.credentialsOptional),
	}
	if config.logger != nil {
		coreOpts = append(coreOpts, core.WithLogger(config.logger))
	}
	guard, err := core.New(coreOpts...)
	if err != nil {
		return nil, err
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.skipper != nil && config.skipper(c) {
				return next(c)
			}

			tokenString, err := config.tokenExtractor(c.Request())
			if err != nil {
				return config.errorHandler(c, core.NewError(core.ErrorCodeMalformedToken, "error extracting token", err))
			}

			claims, err := guard.CheckToken(c.Request().Context(), tokenString)
			if err != nil {
				return config.errorHandler(c, err)
			}

			if claims != nil {
				c.SetRequest(c.Request().WithContext(core.SetClaims(c.Request().Context(), claims)))
				c.Set(config.contextKey, claims)
			}
			return next(c)
		}
	}, nil
}

// DefaultErrorHandler writes the same status and JSON body as the net/http
// middleware.
func DefaultErrorHandler(c echo.Context, err error) error {
	svcauth.DefaultErrorHandler(c.Response(), c.Request(), err)
	return nil
}

// GetClaims returns the claims stored under contextKey, or under
// DefaultClaimsKey when contextKey is empty.
func GetClaims(c echo.Context, contextKey string) (*verifier.Claims, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	claims := c.Get(contextKey)
	if claims == nil {
		return nil, ErrMissingClaims
	}

	verified, ok := claims.(*verifier.Claims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return verified, nil
}
