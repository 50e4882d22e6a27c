// Package assertion builds and signs the RS256 JWT assertions a service
// account presents to the token endpoint.
package assertion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/core"
)

// DefaultLifetime is the assertion lifetime used when none is given.
const DefaultLifetime = time.Hour

// Builder constructs claim sets and signs them. It holds no key material and
// is safe for concurrent use.
type Builder struct {
	audience string
	scopes   []string
	lifetime time.Duration
	clock    clockwork.Clock
}

// Claims builds the claim set for one assertion without signing it.
// lifetime <= 0 selects the builder's default lifetime and a fractional one
// is rounded up to the next second. An empty subjectID yields service claims
// and a non-empty one yields custom-token claims.
func (b *Builder) Claims(cert *certificate.Certificate, lifetime time.Duration, subjectID string) Claims {
	if lifetime <= 0 {
		lifetime = b.lifetime
	}
	return newClaims(cert, b.audience, b.scopes, b.clock.Now(), lifetime, subjectID)
}

// Build constructs the claims and signs them with the certificate's private
// key, returning the compact serialization.
//
// The only failure of signing itself is core.ErrInvalidCertificate, returned
// when the private key cannot be parsed into an RSA private key.
func (b *Builder) Build(cert *certificate.Certificate, lifetime time.Duration, subjectID string, opts ...BuildOption) (string, error) {
	if cert == nil {
		return "", core.NewError(core.ErrorCodeInvalidCertificate, "certificate is nil", nil)
	}
	if lifetime > 0 {
		if err := ValidateLifetime(lifetime); err != nil {
			return "", fmt.Errorf("invalid lifetime: %w", err)
		}
	}

	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	claims := b.Claims(cert, lifetime, subjectID)
	if len(cfg.developerClaims) > 0 {
		if subjectID == "" {
			return "", errors.New("developer claims are only allowed on custom tokens")
		}
		if err := validateDeveloperClaims(cfg.developerClaims); err != nil {
			return "", err
		}
		claims.DeveloperClaims = cfg.developerClaims
	}

	return Sign(cert, claims)
}

// Sign signs an arbitrary claim set with RS256.
func Sign(cert *certificate.Certificate, claims Claims) (string, error) {
	key, err := parsePrivateKey(cert)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("could not encode claims: %w", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, "JWT"); err != nil {
		return "", fmt.Errorf("could not set typ header: %w", err)
	}
	if cert.PrivateKeyID != "" {
		if err := headers.Set(jws.KeyIDKey, cert.PrivateKeyID); err != nil {
			return "", fmt.Errorf("could not set kid header: %w", err)
		}
	}

	signed, err := jws.Sign(payload, jws.WithKey(jwa.RS256(), key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", core.NewError(core.ErrorCodeInvalidCertificate, "could not sign assertion with private key", err)
	}

	return string(signed), nil
}

func parsePrivateKey(cert *certificate.Certificate) (jwk.Key, error) {
	if cert == nil || cert.PrivateKey == "" {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "certificate has no private key", nil)
	}

	key, err := jwk.ParseKey([]byte(cert.PrivateKey), jwk.WithPEM(true))
	if err != nil {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "could not parse private key", err)
	}
	if _, ok := key.(jwk.RSAPrivateKey); !ok {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, fmt.Sprintf("private key is %s, not an RSA private key", key.KeyType()), nil)
	}

	return key, nil
}

// ParseUnverified decodes the payload of a compact token without verifying
// its signature. Use it only for diagnostics.
func ParseUnverified(token string) (map[string]any, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "could not parse token", err)
	}

	var claims map[string]any
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "could not decode token payload", err)
	}

	return claims, nil
}
