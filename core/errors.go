package core

import "errors"

// Sentinel errors for credential issuance and verification. Every *Error
// matches exactly one of these with errors.Is, selected by its Code.
var (
	// ErrInvalidCertificate is returned when the service-account private key
	// cannot be parsed, or the certificate source cannot supply one.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrTokenExchangeFailed is returned when the token endpoint cannot be
	// reached or answers with a non-2xx status.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrUnknownKeyID is returned when a token names a key id that is absent
	// from the public key set even after a refresh.
	ErrUnknownKeyID = errors.New("unknown key id")

	// ErrKeyFetchFailed is returned when the public key endpoint cannot be
	// reached or returns an unusable response.
	ErrKeyFetchFailed = errors.New("public key fetch failed")

	// ErrMalformedToken is returned when a token is not a well-formed compact JWS.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature is returned when a token signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidClaims is returned when a verified token carries claims that
	// fail validation. The offending claim is available in Error.Field.
	ErrInvalidClaims = errors.New("invalid claims")

	// ErrTokenMissing is returned by the guard when no token was presented
	// and credentials are required.
	ErrTokenMissing = errors.New("token missing")

	// ErrClaimsNotFound is returned when no verified claims were stored in
	// the context.
	ErrClaimsNotFound = errors.New("claims not found in context")

	// ErrClaimsTypeMismatch is returned when the stored claims are not of the
	// requested type.
	ErrClaimsTypeMismatch = errors.New("claims in context have a different type")
)

// Error codes.
const (
	ErrorCodeInvalidCertificate  = "invalid_certificate"
	ErrorCodeTokenExchangeFailed = "token_exchange_failed"
	ErrorCodeUnknownKeyID        = "unknown_key_id"
	ErrorCodeKeyFetchFailed      = "key_fetch_failed"
	ErrorCodeMalformedToken      = "malformed_token"
	ErrorCodeInvalidSignature    = "invalid_signature"
	ErrorCodeInvalidClaims       = "invalid_claims"
	ErrorCodeTokenMissing        = "token_missing"
	ErrorCodeConfigInvalid       = "config_invalid"
)

var sentinels = map[string]error{
	ErrorCodeInvalidCertificate:  ErrInvalidCertificate,
	ErrorCodeTokenExchangeFailed: ErrTokenExchangeFailed,
	ErrorCodeUnknownKeyID:        ErrUnknownKeyID,
	ErrorCodeKeyFetchFailed:      ErrKeyFetchFailed,
	ErrorCodeMalformedToken:      ErrMalformedToken,
	ErrorCodeInvalidSignature:    ErrInvalidSignature,
	ErrorCodeInvalidClaims:       ErrInvalidClaims,
	ErrorCodeTokenMissing:        ErrTokenMissing,
}

// Error is the discriminated failure returned by every component. Callers
// branch on Code (or errors.Is against the sentinels above) and, for
// invalid_claims, on Field.
//
// Messages never carry secret material: no private keys, assertions,
// access tokens or raw signatures.
type Error struct {
	// Code is a machine-readable error code (e.g. "invalid_claims").
	Code string

	// Field names the offending claim for invalid_claims errors.
	Field string

	// Message is a human-readable error message.
	Message string

	// Details contains the underlying error, if any.
	Details error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Details != nil {
		return msg + ": " + e.Details.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Details
}

// Is allows the error to be compared with the sentinel for its code.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && target == sentinel
}

// Retryable reports whether repeating the failed operation may succeed.
// Network and endpoint failures are retryable; cryptographic and claim
// failures are not.
func (e *Error) Retryable() bool {
	return e.Code == ErrorCodeTokenExchangeFailed || e.Code == ErrorCodeKeyFetchFailed
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string, details error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewClaimsError creates an invalid_claims error naming the offending claim.
func NewClaimsError(field, message string) *Error {
	return &Error{
		Code:    ErrorCodeInvalidClaims,
		Field:   field,
		Message: message,
	}
}

// IsRetryable reports whether err wraps a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// Code returns the code of the *Error wrapped by err, or "" if there is none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
