package verifier

import (
	"context"
)

// Claims is the result of a successful verification.
type Claims struct {
	RegisteredClaims RegisteredClaims

	// AuthTime is the auth_time claim, 0 when absent.
	AuthTime int64

	// UserID is the user_id claim, or the subject when user_id is absent.
	UserID string

	// Raw is the full decoded payload.
	Raw map[string]any

	// CustomClaims is nil unless WithCustomClaims is passed to New.
	CustomClaims CustomClaims
}

// RegisteredClaims represents public claim
// values (as specified in RFC 7519).
type RegisteredClaims struct {
	Issuer    string   `json:"iss,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Expiry    int64    `json:"exp,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ID        string   `json:"jti,omitempty"`
}

// CustomClaims defines any custom data / claims wanted.
// The Verifier will call the Validate function which
// is where custom validation logic can be defined.
type CustomClaims interface {
	Validate(context.Context) error
}
