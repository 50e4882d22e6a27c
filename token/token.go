// Package token manages the outbound access token of a service account.
//
// A Cache owns one token slot. While the cached token is fresh it is served
// without touching the network; once it nears expiry the next caller builds a
// signed assertion, exchanges it at the token endpoint and stores the result.
// Concurrent callers share that single refresh.
package token

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Token is a bearer access token returned by the token endpoint.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Fresh reports whether the token can still be served at now, leaving margin
// before its expiry.
func (t *Token) Fresh(now time.Time, margin time.Duration) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// OAuth2 converts the token for use with golang.org/x/oauth2 clients.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      t.ExpiresAt,
	}
}

// String omits the access token itself.
func (t Token) String() string {
	return fmt.Sprintf("Token{TokenType: %q, ExpiresAt: %s}", t.TokenType, t.ExpiresAt.Format(time.RFC3339))
}
