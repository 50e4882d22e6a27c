/*
Package grpc provides gRPC server interceptors that verify identity tokens.

	v := svcauth.VerifierAdapter(client.Verifier())

	interceptor, err := grpc.New(
	    grpc.WithVerifier(v),
	    grpc.WithExcludedMethods("/grpc.health.v1.Health/Check"),
	)
	if err != nil {
	    log.Fatal(err)
	}

	server := googlegrpc.NewServer(
	    googlegrpc.UnaryInterceptor(interceptor.UnaryServerInterceptor()),
	    googlegrpc.StreamInterceptor(interceptor.StreamServerInterceptor()),
	)

Tokens are read from the "authorization" metadata as "Bearer <token>".
Handlers read the verified claims with GetClaims:

	claims, err := grpc.GetClaims[*verifier.Claims](ctx)
*/
package grpc
