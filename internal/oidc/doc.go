/*
Package oidc resolves a public key endpoint from an issuer's OpenID Connect
discovery document.

The document lives at a well-known path below the issuer:

	https://securetoken.google.com/my-project/.well-known/openid-configuration

Only the fields the key cache needs are decoded: issuer, jwks_uri and
token_endpoint. The issuer named by the document must match the issuer the
caller expects; otherwise discovery fails.

	issuerURL, _ := url.Parse("https://securetoken.google.com/my-project")
	endpoints, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, client, *issuerURL, issuerURL.String())
	if err != nil {
	    return err
	}
	keysURL := endpoints.JWKSURI
*/
package oidc
