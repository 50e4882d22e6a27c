// Package core holds the pieces shared by every svcauth component: the error
// taxonomy, the logging contract, and Core, the transport-agnostic guard that
// the HTTP, Gin, Echo and gRPC adapters wrap around a token verifier.
package core

import (
	"context"
	"time"
)

// Verifier defines the interface for identity-token verification.
// Implementations return the verified claims, typically *verifier.Claims.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (any, error)
}

// VerifierFunc adapts an ordinary function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (any, error)

// VerifyToken calls f(ctx, token).
func (f VerifierFunc) VerifyToken(ctx context.Context, token string) (any, error) {
	return f(ctx, token)
}

// Logger defines the logging interface used across svcauth. It is satisfied
// by *slog.Logger and by the adapters in the root package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// Core is the framework-agnostic identity-token guard.
type Core struct {
	verifier            Verifier
	credentialsOptional bool
	logger              Logger
}

// CheckToken verifies a token string and returns the verified claims.
//
//   - If token is empty and credentialsOptional is true, returns (nil, nil)
//   - If token is empty and credentialsOptional is false, returns ErrTokenMissing
//   - Otherwise, verifies the token using the configured verifier
func (c *Core) CheckToken(ctx context.Context, token string) (any, error) {
	if token == "" {
		if c.credentialsOptional {
			c.logger.Debug("No token provided, but credentials are optional")
			return nil, nil
		}

		c.logger.Warn("No token provided and credentials are required")
		return nil, NewError(ErrorCodeTokenMissing, "token missing", nil)
	}

	start := time.Now()
	claims, err := c.verifier.VerifyToken(ctx, token)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Token verification failed", "error", err, "code", Code(err), "duration", duration)
		return nil, err
	}

	c.logger.Debug("Token verified successfully", "duration", duration)
	return claims, nil
}
