package svcauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/svcauth/go-svcauth/core"
)

// Middleware guards net/http handlers with identity-token verification.
type Middleware struct {
	core               *core.Core
	errorHandler       ErrorHandler
	tokenExtractor     TokenExtractor
	validateOnOptions  bool
	exclusionPredicate ExclusionPredicate
	logger             Logger

	// Temporary fields used during construction
	verifier            core.Verifier
	credentialsOptional bool
}

// ExclusionPredicate reports whether a request skips verification.
type ExclusionPredicate func(r *http.Request) bool

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware) error

// NewMiddleware constructs a Middleware with the supplied options.
//
// Example:
//
//	mw, err := svcauth.NewMiddleware(
//	    svcauth.WithTokenVerifier(svcauth.VerifierAdapter(client.Verifier())),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create middleware: %v", err)
//	}
//	http.Handle("/api", mw.CheckToken(handler))
func NewMiddleware(opts ...MiddlewareOption) (*Middleware, error) {
	m := &Middleware{
		validateOnOptions:   true,
		credentialsOptional: false,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if m.verifier == nil {
		return nil, fmt.Errorf("invalid middleware configuration: %w", ErrVerifierNil)
	}

	if m.errorHandler == nil {
		m.errorHandler = DefaultErrorHandler
	}
	if m.tokenExtractor == nil {
		m.tokenExtractor = AuthHeaderTokenExtractor
	}

	coreOpts := []core.Option{
		core.WithVerifier(m.verifier),
		core.WithCredentialsOptional(m.credentialsOptional),
	}
	if m.logger != nil {
		coreOpts = append(coreOpts, core.WithLogger(m.logger))
	}

	guard, err := core.New(coreOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}
	m.core = guard

	return m, nil
}

// WithTokenVerifier sets the verifier tokens are checked with (REQUIRED).
func WithTokenVerifier(v core.Verifier) MiddlewareOption {
	return func(m *Middleware) error {
		if v == nil {
			return ErrVerifierNil
		}
		m.verifier = v
		return nil
	}
}

// WithCredentialsOptional sets whether requests without a token pass
// through unauthenticated.
//
// Default: false (credentials required)
func WithCredentialsOptional(value bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.credentialsOptional = value
		return nil
	}
}

// WithValidateOnOptions sets whether OPTIONS requests are verified.
//
// Default: true
func WithValidateOnOptions(value bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.validateOnOptions = value
		return nil
	}
}

// WithErrorHandler sets the handler called when verification fails.
//
// Default: DefaultErrorHandler
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(m *Middleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithTokenExtractor sets the function extracting the token from the
// request.
//
// Default: AuthHeaderTokenExtractor
func WithTokenExtractor(e TokenExtractor) MiddlewareOption {
	return func(m *Middleware) error {
		if e == nil {
			return ErrTokenExtractorNil
		}
		m.tokenExtractor = e
		return nil
	}
}

// WithExclusionUrls excludes requests whose full URL or path equals one of
// exclusions.
func WithExclusionUrls(exclusions []string) MiddlewareOption {
	return func(m *Middleware) error {
		if len(exclusions) == 0 {
			return ErrExclusionUrlsEmpty
		}
		m.exclusionPredicate = func(r *http.Request) bool {
			requestFullURL := r.URL.String()
			requestPath := r.URL.Path

			for _, exclusion := range exclusions {
				if requestFullURL == exclusion || requestPath == exclusion {
					return true
				}
			}
			return false
		}
		return nil
	}
}

// WithMiddlewareLogger sets the logger for the middleware and its guard.
func WithMiddlewareLogger(logger Logger) MiddlewareOption {
	return func(m *Middleware) error {
		if logger == nil {
			return ErrLoggerNil
		}
		m.logger = logger
		return nil
	}
}

// Sentinel errors for middleware configuration
var (
	ErrVerifierNil        = errors.New("verifier cannot be nil (use WithTokenVerifier)")
	ErrErrorHandlerNil    = errors.New("errorHandler cannot be nil")
	ErrTokenExtractorNil  = errors.New("tokenExtractor cannot be nil")
	ErrExclusionUrlsEmpty = errors.New("exclusion URLs list cannot be empty")
)

// GetClaims retrieves claims from the context with type safety.
//
// Example:
//
//	claims, err := svcauth.GetClaims[*verifier.Claims](r.Context())
//	if err != nil {
//	    http.Error(w, "failed to get claims", http.StatusInternalServerError)
//	    return
//	}
//	fmt.Println(claims.UserID)
func GetClaims[T any](ctx context.Context) (T, error) {
	return core.GetClaims[T](ctx)
}

// MustGetClaims retrieves claims from the context or panics.
// Use only when you are certain claims exist (e.g., after middleware has run).
func MustGetClaims[T any](ctx context.Context) T {
	claims, err := core.GetClaims[T](ctx)
	if err != nil {
		panic(err)
	}
	return claims
}

// HasClaims checks if claims exist in the context.
func HasClaims(ctx context.Context) bool {
	return core.HasClaims(ctx)
}

// CheckToken wraps next so that it only runs for requests carrying a valid
// identity token, with the verified claims in the request context.
func (m *Middleware) CheckToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionPredicate != nil && m.exclusionPredicate(r) {
			m.debug("skipping token verification for excluded URL", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			m.debug("skipping token verification for OPTIONS request")
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := m.tokenExtractor(r)
		if err != nil {
			// An extractor error means a token was presented but badly
			// formed, not that it was missing.
			if m.logger != nil {
				m.logger.Error("failed to extract token from request", "error", err, "method", r.Method, "path", r.URL.Path)
			}
			m.errorHandler(w, r, core.NewError(core.ErrorCodeMalformedToken, "error extracting token", err))
			return
		}

		claims, err := m.core.CheckToken(r.Context(), tokenString)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("token verification failed", "error", err, "method", r.Method, "path", r.URL.Path)
			}
			m.errorHandler(w, r, err)
			return
		}

		// Credentials optional and no token presented.
		if claims == nil {
			next.ServeHTTP(w, r)
			return
		}

		m.debug("token verified, setting claims in context")
		r = r.Clone(core.SetClaims(r.Context(), claims))
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
