package assertion

import (
	"fmt"
	"strings"
	"time"

	"github.com/svcauth/go-svcauth/certificate"
)

// Claims is the RFC 7519 claim set of a signed assertion. Fields serialize in
// declaration order.
type Claims struct {
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	Scope    string `json:"scope,omitempty"`

	// UID is set only on custom tokens: the end user the token is bound to.
	UID string `json:"uid,omitempty"`

	// DeveloperClaims are extra claims carried by custom tokens.
	DeveloperClaims map[string]any `json:"claims,omitempty"`
}

// IsCustom reports whether the claims are subject-bound.
func (c Claims) IsCustom() bool {
	return c.UID != ""
}

// Lifetime returns exp - iat.
func (c Claims) Lifetime() time.Duration {
	return time.Duration(c.Expiry-c.IssuedAt) * time.Second
}

// reservedClaims may not be overridden through developer claims.
var reservedClaims = map[string]bool{
	"acr": true, "amr": true, "at_hash": true, "aud": true, "auth_time": true,
	"azp": true, "cnf": true, "c_hash": true, "exp": true, "firebase": true,
	"iat": true, "iss": true, "jti": true, "nbf": true, "nonce": true,
	"scope": true, "sub": true, "uid": true,
}

func validateDeveloperClaims(claims map[string]any) error {
	for name := range claims {
		if reservedClaims[name] {
			return fmt.Errorf("developer claim %q is reserved and cannot be set", name)
		}
	}
	return nil
}

// newClaims builds the claim set for one assertion. An empty subjectID yields
// service claims; a non-empty one yields user claims carrying uid.
func newClaims(cert *certificate.Certificate, audience string, scopes []string, now time.Time, lifetime time.Duration, subjectID string) Claims {
	iat := now.Unix()
	seconds := int64((lifetime + time.Second - 1) / time.Second)
	return Claims{
		Issuer:   cert.ClientEmail,
		Audience: audience,
		IssuedAt: iat,
		Expiry:   iat + seconds,
		Scope:    strings.Join(scopes, " "),
		UID:      subjectID,
	}
}
