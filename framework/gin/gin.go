// Package svcgin verifies identity tokens in Gin applications.
package svcgin

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/verifier"
)

// DefaultClaimsKey is the gin.Context key the verified claims are stored
// under, next to the request context.
const DefaultClaimsKey = "svcauth.claims"

var (
	ErrMissingClaims = errors.New("no identity token claims found in context")
	ErrInvalidClaims = errors.New("invalid identity token claims type")
)

type middlewareConfig struct {
	verifier            core.Verifier
	errorHandler        func(*gin.Context, error)
	contextKey          string
	tokenExtractor      svcauth.TokenExtractor
	credentialsOptional bool
	logger              core.Logger
}

// New creates a Gin middleware verifying the identity token of every
// request.
//
// Example:
//
//	mw, err := svcgin.New(svcgin.WithVerifier(svcauth.VerifierAdapter(client.Verifier())))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router.Use(mw)
func New(opts ...Option) (gin.HandlerFunc, error) {
	config := &middlewareConfig{
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

	return func(c *gin.Context) {
		tokenString, err := config.tokenExtractor(c.Request)
		if err != nil {
			config.errorHandler(c, core.NewError(core.ErrorCodeMalformedToken, "error extracting token", err))
			return
		}

		claims, err := guard.CheckToken(c.Request.Context(), tokenString)
		if err != nil {
			config.errorHandler(c, err)
			return
		}

		if claims != nil {
			c.Request = c.Request.WithContext(core.SetClaims(c.Request.Context(), claims))
			c.Set(config.contextKey, claims)
		}
		c.Next()
	}, nil
}

// DefaultErrorHandler aborts with the status and JSON body the net/http
// middleware would write.
func DefaultErrorHandler(c *gin.Context, err error) {
	svcauth.DefaultErrorHandler(c.Writer, c.Request, err)
	c.Abort()
}

// GetClaims returns the claims stored under contextKey, or under
// DefaultClaimsKey when contextKey is empty.
func GetClaims(c *gin.Context, contextKey string) (*verifier.Claims, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	claims, exists := c.Get(contextKey)
	if !exists {
		return nil, ErrMissingClaims
	}

	verified, ok := claims.(*verifier.Claims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	return verified, nil
}
