package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/svcauth/go-svcauth/core"
)

// ErrorHandler converts verification errors to gRPC status errors.
type ErrorHandler func(error) error

// DefaultErrorHandler maps verification errors to gRPC status codes:
// extractor errors are InvalidArgument, unreachable signing keys are
// Unavailable, and every token or claim problem is Unauthenticated.
func DefaultErrorHandler(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMultipleAuthHeaders) ||
		errors.Is(err, ErrInvalidAuthFormat) ||
		errors.Is(err, ErrUnsupportedScheme) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		return status.Error(codes.Unauthenticated, "invalid or malformed token")
	}

	switch coreErr.Code {
	case core.ErrorCodeTokenMissing:
		return status.Error(codes.Unauthenticated, "missing credentials")
	case core.ErrorCodeMalformedToken:
		return status.Error(codes.Unauthenticated, "malformed token")
	case core.ErrorCodeUnknownKeyID:
		return status.Error(codes.Unauthenticated, "token signed with an unknown key")
	case core.ErrorCodeInvalidSignature:
		return status.Error(codes.Unauthenticated, "invalid signature")
	case core.ErrorCodeInvalidClaims:
		if coreErr.Field != "" {
			return status.Errorf(codes.Unauthenticated, "invalid claim %s", coreErr.Field)
		}
		return status.Error(codes.Unauthenticated, "invalid claims")
	case core.ErrorCodeKeyFetchFailed:
		return status.Error(codes.Unavailable, "unable to verify token")
	default:
		return status.Error(codes.Unauthenticated, "invalid or malformed token")
	}
}
