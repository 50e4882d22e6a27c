package grpc

import (
	"errors"

	"github.com/svcauth/go-svcauth/core"
)

// Option configures the Interceptor.
type Option func(*Interceptor) error

// coreBuilder accumulates core options until New builds the guard.
type coreBuilder struct {
	verifier            core.Verifier
	credentialsOptional bool
	logger              core.Logger
}

func (b *coreBuilder) build() (*core.Core, error) {
	opts := []core.Option{
		core.WithVerifier(b.verifier),
		core.WithCredentialsOptional(b.credentialsOptional),
	}
	if b.logger != nil {
		opts = append(opts, core.WithLogger(b.logger))
	}
	return core.New(opts...)
}

func (i *Interceptor) builder() *coreBuilder {
	if i.coreBuilder == nil {
		i.coreBuilder = &coreBuilder{}
	}
	return i.coreBuilder
}

// WithVerifier sets the identity-token verifier (REQUIRED).
//
// Example:
//
//	interceptor, _ := grpc.New(
//	    grpc.WithVerifier(svcauth.VerifierAdapter(client.Verifier())),
//	    grpc.WithExcludedMethods("/grpc.health.v1.Health/Check"),
//	)
func WithVerifier(v core.Verifier) Option {
	return func(i *Interceptor) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		i.builder().verifier = v
		return nil
	}
}

// WithCredentialsOptional lets requests without a token through, with no
// claims in their context.
//
// Default: false (credentials required)
func WithCredentialsOptional(optional bool) Option {
	return func(i *Interceptor) error {
		i.builder().credentialsOptional = optional
		return nil
	}
}

// WithLogger sets an optional logger for the interceptor and its guard.
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		i.builder().logger = logger
		i.logger = logger
		return nil
	}
}

// WithTokenExtractor sets a custom token extractor function.
// Default is MetadataTokenExtractor.
func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(i *Interceptor) error {
		if extractor == nil {
			return errors.New("token extractor cannot be nil")
		}
		i.tokenExtractor = extractor
		return nil
	}
}

// WithErrorHandler sets a custom error handler function.
// Default is DefaultErrorHandler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(i *Interceptor) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		i.errorHandler = handler
		return nil
	}
}

// WithExcludedMethods excludes gRPC methods, given as
// "/package.Service/Method", from verification.
func WithExcludedMethods(methods ...string) Option {
	return func(i *Interceptor) error {
		for _, method := range methods {
			i.excludedMethods[method] = true
		}
		return nil
	}
}
