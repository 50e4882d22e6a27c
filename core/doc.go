/*
Package core provides the shared foundation of svcauth.

# Errors

Every component reports failures as *Error. Callers branch on the code:

	claims, err := v.VerifyToken(ctx, raw)
	switch {
	case errors.Is(err, core.ErrUnknownKeyID):
	    // token signed by a retired or foreign key
	case errors.Is(err, core.ErrInvalidClaims):
	    var cerr *core.Error
	    errors.As(err, &cerr)
	    log.Printf("bad claim %s", cerr.Field)
	case core.IsRetryable(err):
	    // provider unreachable, try again later
	}

# Guard

Core wraps a Verifier with the credentials-optional policy and logging. The
HTTP, Gin, Echo and gRPC adapters all delegate to it:

	guard, err := core.New(
	    core.WithVerifier(svcauth.VerifierAdapter(client.Verifier())),
	    core.WithLogger(slog.Default()),
	)

Verified claims travel in the request context through SetClaims and GetClaims.
*/
package core
