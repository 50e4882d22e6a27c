package verifier

import (
	"errors"
	"strings"
)

var (
	// ErrTokenEmpty is returned for an empty token string.
	ErrTokenEmpty = errors.New("token is empty")

	// ErrTokenTooLarge is returned for tokens over maxTokenSize.
	ErrTokenTooLarge = errors.New("token exceeds maximum size (1MB)")

	// ErrTokenSegments is returned when a token is not three dot-separated
	// segments.
	ErrTokenSegments = errors.New("token must have exactly three segments")
)

// maxTokenSize bounds the input before any decoding. Identity tokens are a
// few KB.
const maxTokenSize = 1024 * 1024

// validateTokenFormat rejects inputs that cannot be a compact JWS before
// they reach the decoder.
func validateTokenFormat(tokenString string) error {
	if len(tokenString) == 0 {
		return ErrTokenEmpty
	}

	if len(tokenString) > maxTokenSize {
		return ErrTokenTooLarge
	}

	if strings.Count(tokenString, ".") != 2 {
		return ErrTokenSegments
	}

	for _, segment := range strings.SplitN(tokenString, ".", 3) {
		if segment == "" {
			return ErrTokenSegments
		}
	}

	return nil
}
