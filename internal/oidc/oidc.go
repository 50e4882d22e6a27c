package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

const maxDocumentSize = 1 << 20

// WellKnownEndpoints holds the discovery metadata this module uses.
type WellKnownEndpoints struct {
	Issuer        string `json:"issuer"`
	JWKSURI       string `json:"jwks_uri"`
	TokenEndpoint string `json:"token_endpoint,omitempty"`
}

// GetWellKnownEndpointsFromIssuerURL fetches the discovery document of
// issuerURL and checks that it describes expectedIssuer. A document naming a
// different issuer is rejected so keys from one issuer cannot be served for
// another.
func GetWellKnownEndpointsFromIssuerURL(
	ctx context.Context,
	client *http.Client,
	issuerURL url.URL,
	expectedIssuer string,
) (*WellKnownEndpoints, error) {
	issuerURL.Path = path.Join(issuerURL.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get well-known endpoints: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch well-known endpoints from url %s: %w", issuerURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("well-known endpoint %s returned status %d", issuerURL.String(), resp.StatusCode)
	}

	var wkEndpoints WellKnownEndpoints
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&wkEndpoints); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from well-known endpoints: %w", err)
	}

	if wkEndpoints.Issuer == "" {
		return nil, fmt.Errorf("discovery document is missing required 'issuer' field")
	}
	if wkEndpoints.Issuer != expectedIssuer {
		return nil, fmt.Errorf("issuer mismatch: discovery document names %q, expected %q", wkEndpoints.Issuer, expectedIssuer)
	}
	if wkEndpoints.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document is missing required 'jwks_uri' field")
	}

	return &wkEndpoints, nil
}
