/*
Package svcauth issues service-account credentials and verifies identity
tokens for a cloud identity platform.

A Client combines four components, each usable on its own:

  - assertion.Builder turns a service-account private key into short-lived
    RS256 assertions.
  - token.Cache exchanges assertions for bearer access tokens and keeps the
    current one until shortly before it expires.
  - keys.Cache fetches the provider's public signing keys and keeps them for
    as long as the response's Cache-Control max-age allows.
  - verifier.Verifier checks identity tokens against those keys and the
    configured project.

The two caches share no state: issuing tokens never touches the key set and
verifying tokens never touches the access token.

# Quick Start

	source, err := certificate.NewFileSource("service-account.json")
	if err != nil {
	    log.Fatal(err)
	}

	client, err := svcauth.New(
	    svcauth.WithCertificateSource(source),
	    svcauth.WithProjectID("my-project"),
	    svcauth.WithLogger(slog.Default()),
	)
	if err != nil {
	    log.Fatal(err)
	}

	tok, err := client.IssueAccessToken(ctx)
	if err != nil {
	    log.Fatal(err)
	}
	req.Header.Set("Authorization", tok.TokenType+" "+tok.AccessToken)

IssueAccessToken makes no network call while the cached token is fresh.
Concurrent callers that find it stale share a single refresh.

# Custom Tokens

IssueCustomToken binds an assertion to a caller-chosen user id and exchanges
it on every call; SignCustomToken only signs it. Developer claims can be
attached:

	signed, err := client.SignCustomToken(ctx, "user-123",
	    assertion.WithDeveloperClaims(map[string]any{"tier": "gold"}),
	)

# Verifying Identity Tokens

	claims, err := client.VerifyIdentityToken(ctx, rawToken)
	if err != nil {
	    var cerr *core.Error
	    if errors.As(err, &cerr) && cerr.Code == core.ErrorCodeInvalidClaims {
	        log.Printf("claim %s rejected", cerr.Field)
	    }
	    return err
	}
	fmt.Println(claims.UserID)

A token naming an unknown key id causes at most one refresh of the key set
before failing with core.ErrUnknownKeyID.

# HTTP Middleware

	mw, err := svcauth.NewMiddleware(
	    svcauth.WithTokenVerifier(svcauth.VerifierAdapter(client.Verifier())),
	)
	if err != nil {
	    log.Fatal(err)
	}
	http.Handle("/api/", mw.CheckToken(apiHandler))

Handlers read the verified claims with GetClaims:

	claims, err := svcauth.GetClaims[*verifier.Claims](r.Context())

Gin, Echo and gRPC adapters live under framework/.

# Observability

WithMetrics and WithTracer record one counter increment, one histogram
observation and one span per public operation:

	client, err := svcauth.New(
	    svcauth.WithProjectID("my-project"),
	    svcauth.WithMetrics(svcauth.NewPrometheusMetrics(prometheus.DefaultRegisterer)),
	    svcauth.WithTracer(svcauth.NewOpenTelemetryTracer(otel.Tracer("svcauth"))),
	)

Loggers from logrus, zap and zerolog are adapted with NewLogrusLogger,
NewZapLogger and NewZerologLogger; *slog.Logger is accepted as is.

# Testing

WithExchanger replaces the token endpoint, typically with a
tokentest.Exchanger that issues deterministic tokens and counts calls.
*/
package svcauth
