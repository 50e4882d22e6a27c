package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/core"
)

// GrantTypeJWTBearer is the RFC 7523 grant type for assertion exchange.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// maxResponseSize bounds how much of a token response is read.
const maxResponseSize = 1 << 20

// Exchanger trades a signed assertion for an access token.
type Exchanger interface {
	Exchange(ctx context.Context, assertion string) (*Token, error)
}

// ExchangerFunc adapts an ordinary function to the Exchanger interface.
type ExchangerFunc func(ctx context.Context, assertion string) (*Token, error)

// Exchange calls f(ctx, assertion).
func (f ExchangerFunc) Exchange(ctx context.Context, assertion string) (*Token, error) {
	return f(ctx, assertion)
}

// HTTPExchanger posts assertions to an OAuth 2.0 token endpoint.
type HTTPExchanger struct {
	tokenURL  string
	grantType string
	client    *http.Client
	clock     clockwork.Clock
}

// ErrorResponse is the structured error body of a token endpoint.
type ErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   expiresIn `json:"expires_in"`
}

// expiresIn accepts both numeric and string encodings of expires_in.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*e = 0
		return nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q: %w", raw, err)
	}
	*e = expiresIn(seconds)
	return nil
}

// NewHTTPExchanger creates an exchanger for tokenURL.
//
// Optional options:
//   - WithHTTPClient: HTTP client (default: 30s timeout)
//   - WithGrantType: grant_type form value (default: GrantTypeJWTBearer)
//   - WithExchangeClock: clock used to compute ExpiresAt
func NewHTTPExchanger(tokenURL string, opts ...ExchangerOption) (*HTTPExchanger, error) {
	if tokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if _, err := url.ParseRequestURI(tokenURL); err != nil {
		return nil, fmt.Errorf("invalid token URL: %w", err)
	}

	e := &HTTPExchanger{
		tokenURL:  tokenURL,
		grantType: GrantTypeJWTBearer,
		client:    &http.Client{Timeout: defaultTimeout},
		clock:     clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return e, nil
}

// Exchange implements Exchanger. Every failure is a token_exchange_failed
// error; a structured error body is attached as its details.
func (e *HTTPExchanger) Exchange(ctx context.Context, assertion string) (*Token, error) {
	form := url.Values{
		"grant_type": {e.grantType},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "could not build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := e.clock.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "could not read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewError(
			core.ErrorCodeTokenExchangeFailed,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode),
			parseErrorResponse(body),
		)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "could not decode token response", err)
	}
	if tr.AccessToken == "" {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "token response has no access_token", nil)
	}
	if tr.ExpiresIn <= 0 {
		return nil, core.NewError(core.ErrorCodeTokenExchangeFailed, "token response has no positive expires_in", nil)
	}
	if tr.TokenType == "" {
		tr.TokenType = "Bearer"
	}

	return &Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresAt:   issuedAt.Add(secondsToDuration(int64(tr.ExpiresIn))),
	}, nil
}

func parseErrorResponse(body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Code == "" {
		return nil
	}
	return &er
}
