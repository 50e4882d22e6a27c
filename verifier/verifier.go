// Package verifier checks identity tokens issued by the identity platform:
// RS256 signature against the key named by the kid header, then the
// registered claims against the configured project.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/svcauth/go-svcauth/core"
)

// DefaultIssuerPrefix is prepended to the project id to form the expected
// issuer.
const DefaultIssuerPrefix = "https://securetoken.google.com/"

// maxSubjectLength is the longest accepted sub claim.
const maxSubjectLength = 128

// KeyFunc returns the verification key for a key id. keys.Cache.KeyFunc
// satisfies it.
type KeyFunc func(ctx context.Context, kid string) (any, error)

// Verifier verifies identity tokens. It is safe for concurrent use.
type Verifier struct {
	keyFunc          KeyFunc
	projectID        string
	issuerPrefix     string
	issuer           string
	audience         string
	allowedClockSkew time.Duration
	customClaims     func() CustomClaims
	clock            clockwork.Clock
}

// VerifyToken parses, verifies and validates tokenString. Failures are
// *core.Error values with one of the codes malformed_token, unknown_key_id,
// key_fetch_failed, invalid_signature or invalid_claims.
func (v *Verifier) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	if err := validateTokenFormat(tokenString); err != nil {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "invalid token format", err)
	}

	msg, err := jws.Parse([]byte(tokenString), jws.WithCompact())
	if err != nil {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "could not parse the token", err)
	}

	signatures := msg.Signatures()
	if len(signatures) != 1 {
		return nil, core.NewError(core.ErrorCodeMalformedToken, fmt.Sprintf("token has %d signatures, expected 1", len(signatures)), nil)
	}
	headers := signatures[0].ProtectedHeaders()

	kid, ok := headers.KeyID()
	if !ok || kid == "" {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "token has no kid header", nil)
	}

	var raw map[string]any
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		return nil, core.NewError(core.ErrorCodeMalformedToken, "token payload is not a JSON object", err)
	}

	key, err := v.keyFunc(ctx, kid)
	if err != nil {
		var e *core.Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "error getting the key from the key func", err)
	}

	alg, ok := headers.Algorithm()
	if !ok || alg.String() != jwa.RS256().String() {
		return nil, core.NewError(core.ErrorCodeInvalidSignature, fmt.Sprintf("expected %q signing algorithm but token specified %q", jwa.RS256().String(), alg.String()), nil)
	}

	if _, err := jws.Verify([]byte(tokenString), jws.WithKey(jwa.RS256(), key)); err != nil {
		return nil, core.NewError(core.ErrorCodeInvalidSignature, "signature verification failed", nil)
	}

	claims, err := v.validateClaims(raw)
	if err != nil {
		return nil, err
	}

	if v.customClaims != nil {
		custom := v.customClaims()
		if custom != nil {
			if err := json.Unmarshal(msg.Payload(), custom); err != nil {
				return nil, core.NewError(core.ErrorCodeInvalidClaims, "could not decode custom claims", err)
			}
			if err := custom.Validate(ctx); err != nil {
				return nil, core.NewError(core.ErrorCodeInvalidClaims, "custom claims not validated", err)
			}
			claims.CustomClaims = custom
		}
	}

	return claims, nil
}

// validateClaims checks the registered claims of a signature-verified
// payload, in order: exp, iat, auth_time, nbf, aud, iss, sub.
func (v *Verifier) validateClaims(raw map[string]any) (*Claims, error) {
	now := v.clock.Now()
	leeway := v.allowedClockSkew

	exp, err := numericClaim(raw, "exp", true)
	if err != nil {
		return nil, err
	}
	if !now.Add(-leeway).Before(time.Unix(exp, 0)) {
		return nil, core.NewClaimsError("exp", "token has expired")
	}

	iat, err := numericClaim(raw, "iat", true)
	if err != nil {
		return nil, err
	}
	if now.Add(leeway).Before(time.Unix(iat, 0)) {
		return nil, core.NewClaimsError("iat", "token was issued in the future")
	}

	authTime, err := numericClaim(raw, "auth_time", false)
	if err != nil {
		return nil, err
	}
	if authTime != 0 && now.Add(leeway).Before(time.Unix(authTime, 0)) {
		return nil, core.NewClaimsError("auth_time", "authentication time is in the future")
	}

	nbf, err := numericClaim(raw, "nbf", false)
	if err != nil {
		return nil, err
	}
	if nbf != 0 && now.Add(leeway).Before(time.Unix(nbf, 0)) {
		return nil, core.NewClaimsError("nbf", "token is not valid yet")
	}

	audience, err := audienceClaim(raw)
	if err != nil {
		return nil, err
	}
	if !contains(audience, v.audience) {
		return nil, core.NewClaimsError("aud", fmt.Sprintf("expected audience %q", v.audience))
	}

	issuer, _ := raw["iss"].(string)
	if issuer != v.issuer {
		return nil, core.NewClaimsError("iss", fmt.Sprintf("expected issuer %q", v.issuer))
	}

	subject, ok := raw["sub"].(string)
	switch {
	case !ok || subject == "":
		return nil, core.NewClaimsError("sub", "subject must be a non-empty string")
	case len(subject) > maxSubjectLength:
		return nil, core.NewClaimsError("sub", fmt.Sprintf("subject cannot be longer than %d characters", maxSubjectLength))
	}

	userID := subject
	if value, present := raw["user_id"]; present {
		id, ok := value.(string)
		switch {
		case !ok || id == "":
			return nil, core.NewClaimsError("user_id", "user_id must be a non-empty string")
		case len(id) > maxSubjectLength:
			return nil, core.NewClaimsError("user_id", fmt.Sprintf("user_id cannot be longer than %d characters", maxSubjectLength))
		}
		userID = id
	}
	jti, _ := raw["jti"].(string)

	return &Claims{
		RegisteredClaims: RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  audience,
			Expiry:    exp,
			NotBefore: nbf,
			IssuedAt:  iat,
			ID:        jti,
		},
		AuthTime: authTime,
		UserID:   userID,
		Raw:      raw,
	}, nil
}

// numericClaim reads a NumericDate claim. Absent optional claims yield 0.
func numericClaim(raw map[string]any, name string, required bool) (int64, error) {
	value, ok := raw[name]
	if !ok {
		if required {
			return 0, core.NewClaimsError(name, "claim is required")
		}
		return 0, nil
	}

	number, ok := value.(float64)
	if !ok {
		return 0, core.NewClaimsError(name, "claim must be a number")
	}
	return int64(number), nil
}

// audienceClaim reads aud as a single string or an array of strings.
func audienceClaim(raw map[string]any) ([]string, error) {
	switch aud := raw["aud"].(type) {
	case string:
		return []string{aud}, nil
	case []any:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			s, ok := item.(string)
			if !ok {
				return nil, core.NewClaimsError("aud", "audience must be a string or an array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, core.NewClaimsError("aud", "audience must be a string or an array of strings")
	}
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
