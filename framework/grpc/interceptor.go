package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/svcauth/go-svcauth/core"
)

// Interceptor verifies identity tokens on gRPC servers.
type Interceptor struct {
	core            *core.Core
	tokenExtractor  TokenExtractor
	errorHandler    ErrorHandler
	excludedMethods map[string]bool
	logger          core.Logger

	// Internal builder for accumulating core options
	coreBuilder *coreBuilder
}

// New creates a gRPC interceptor. WithVerifier is required.
func New(opts ...Option) (*Interceptor, error) {
	interceptor := &Interceptor{
		tokenExtractor:  MetadataTokenExtractor,
		errorHandler:    DefaultErrorHandler,
		excludedMethods: make(map[string]bool),
	}

	for _, opt := range opts {
		if err := opt(interceptor); err != nil {
			return nil, err
		}
	}

	if interceptor.coreBuilder == nil || interceptor.coreBuilder.verifier == nil {
		return nil, errors.New("verifier is required, use WithVerifier option")
	}

	c, err := interceptor.coreBuilder.build()
	if err != nil {
		return nil, err
	}
	interceptor.core = c

	return interceptor, nil
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that
// verifies the identity token and stores its claims in the request context.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if i.excludedMethods[info.FullMethod] {
			i.debug("skipping token verification for excluded method", "method", info.FullMethod)
			return handler(ctx, req)
		}

		verifiedCtx, err := i.verifyRequest(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}

		return handler(verifiedCtx, req)
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that
// verifies the identity token and stores its claims in the stream context.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.excludedMethods[info.FullMethod] {
			i.debug("skipping token verification for excluded method", "method", info.FullMethod)
			return handler(srv, ss)
		}

		verifiedCtx, err := i.verifyRequest(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}

		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: verifiedCtx})
	}
}

func (i *Interceptor) verifyRequest(ctx context.Context, method string) (context.Context, error) {
	tokenString, err := i.tokenExtractor(ctx)
	if err != nil {
		if i.logger != nil {
			i.logger.Error("failed to extract token from gRPC metadata", "error", err, "method", method)
		}
		return ctx, i.errorHandler(err)
	}

	claims, err := i.core.CheckToken(ctx, tokenString)
	if err != nil {
		if i.logger != nil {
			i.logger.Warn("token verification failed", "error", err, "method", method)
		}
		return ctx, i.errorHandler(err)
	}

	if claims != nil {
		ctx = core.SetClaims(ctx, claims)
	}
	return ctx, nil
}

func (i *Interceptor) debug(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Debug(msg, args...)
	}
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context with the verified claims.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
