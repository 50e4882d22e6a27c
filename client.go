package svcauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/svcauth/go-svcauth/assertion"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/keys"
	"github.com/svcauth/go-svcauth/token"
	"github.com/svcauth/go-svcauth/verifier"
)

const (
	// DefaultTokenURL is the OAuth 2.0 token endpoint assertions are
	// exchanged at.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	// DefaultScope is requested when no scopes are configured.
	DefaultScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Operation names used for metrics and spans.
const (
	OperationIssueAccessToken    = "issue_access_token"
	OperationIssueCustomToken    = "issue_custom_token"
	OperationSignCustomToken     = "sign_custom_token"
	OperationVerifyIdentityToken = "verify_identity_token"
	OperationGetPublicKeys       = "get_public_keys"
	OperationGetPublicKey        = "get_public_key"
)

var (
	// ErrIssuanceNotConfigured is returned by the issuing operations of a
	// Client built without a certificate source.
	ErrIssuanceNotConfigured = errors.New("token issuance is not configured (use WithCertificateSource)")

	// ErrVerificationNotConfigured is returned by VerifyIdentityToken on a
	// Client built without a project id.
	ErrVerificationNotConfigured = errors.New("token verification is not configured (use WithProjectID)")
)

// Client exposes credential issuance and identity-token verification. The
// access-token cache and the public-key cache are independent; a Client is
// safe for concurrent use.
type Client struct {
	tokens   *token.Cache
	keys     *keys.Cache
	verifier *verifier.Verifier

	logger  Logger
	metrics Metrics
	tracer  Tracer

	// Temporary fields used during construction
	cfg *config
}

// IssueAccessToken returns a bearer access token for the service account,
// served from cache while it is fresh.
func (c *Client) IssueAccessToken(ctx context.Context) (tok *token.Token, err error) {
	ctx, done := c.observe(ctx, OperationIssueAccessToken)
	defer func() { done(err) }()

	if c.tokens == nil {
		return nil, ErrIssuanceNotConfigured
	}
	return c.tokens.AccessToken(ctx)
}

// IssueCustomToken builds an assertion bound to uid and exchanges it. The
// result is never cached.
func (c *Client) IssueCustomToken(ctx context.Context, uid string, opts ...assertion.BuildOption) (tok *token.Token, err error) {
	ctx, done := c.observe(ctx, OperationIssueCustomToken)
	defer func() { done(err) }()

	if c.tokens == nil {
		return nil, ErrIssuanceNotConfigured
	}
	return c.tokens.CustomToken(ctx, uid, opts...)
}

// SignCustomToken builds and signs an assertion bound to uid without
// exchanging it.
func (c *Client) SignCustomToken(ctx context.Context, uid string, opts ...assertion.BuildOption) (signed string, err error) {
	ctx, done := c.observe(ctx, OperationSignCustomToken)
	defer func() { done(err) }()

	if c.tokens == nil {
		return "", ErrIssuanceNotConfigured
	}
	return c.tokens.SignCustomToken(ctx, uid, opts...)
}

// VerifyIdentityToken verifies an identity token issued for the configured
// project and returns its claims.
func (c *Client) VerifyIdentityToken(ctx context.Context, tokenString string) (claims *verifier.Claims, err error) {
	ctx, done := c.observe(ctx, OperationVerifyIdentityToken)
	defer func() { done(err) }()

	if c.verifier == nil {
		return nil, ErrVerificationNotConfigured
	}
	return c.verifier.VerifyToken(ctx, tokenString)
}

// PublicKeys returns the current key id to PEM mapping.
func (c *Client) PublicKeys(ctx context.Context) (pems map[string]string, err error) {
	ctx, done := c.observe(ctx, OperationGetPublicKeys)
	defer func() { done(err) }()

	return c.keys.GetAllKeys(ctx)
}

// PublicKey returns the PEM-encoded public key with id kid.
func (c *Client) PublicKey(ctx context.Context, kid string) (pem string, err error) {
	ctx, done := c.observe(ctx, OperationGetPublicKey)
	defer func() { done(err) }()

	return c.keys.GetKey(ctx, kid)
}

// TokenSource returns an oauth2.TokenSource backed by the access-token
// cache, or nil when issuance is not configured.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.TokenSource(ctx)
}

// Verifier returns the identity-token verifier, or nil when verification
// is not configured. It satisfies core.Verifier through VerifierAdapter.
func (c *Client) Verifier() *verifier.Verifier {
	return c.verifier
}

// observe starts a span and returns a callback recording the outcome.
func (c *Client) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := c.tracer.StartSpan(ctx, "svcauth."+operation)
	start := time.Now()

	return ctx, func(err error) {
		result := resultLabel(err)
		c.metrics.IncCounter(metricOperationsTotal, map[string]string{"operation": operation, "result": result})
		c.metrics.ObserveHistogram(metricOperationDuration, time.Since(start).Seconds(), map[string]string{"operation": operation})

		span.SetTag("result", result)
		if err != nil {
			span.SetError(err)
			c.logger.Debug("operation failed", "operation", operation, "code", core.Code(err), "error", err)
		}
		span.Finish()
	}
}

// resultLabel maps an outcome to a low-cardinality metric label.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if code := core.Code(err); code != "" {
		return code
	}
	return "error"
}

// VerifierAdapter adapts a *verifier.Verifier to core.Verifier for the
// middleware and framework adapters.
func VerifierAdapter(v *verifier.Verifier) core.Verifier {
	return core.VerifierFunc(func(ctx context.Context, tokenString string) (any, error) {
		return v.VerifyToken(ctx, tokenString)
	})
}
