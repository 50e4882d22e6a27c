package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	testCases := []struct {
		name      string
		err       *Error
		sentinel  error
		message   string
		retryable bool
	}{
		{
			name:     "invalid certificate",
			err:      NewError(ErrorCodeInvalidCertificate, "could not parse private key", errors.New("asn1: syntax error")),
			sentinel: ErrInvalidCertificate,
			message:  "could not parse private key: asn1: syntax error",
		},
		{
			name:      "token exchange failure is retryable",
			err:       NewError(ErrorCodeTokenExchangeFailed, "token endpoint returned status 503", nil),
			sentinel:  ErrTokenExchangeFailed,
			message:   "token endpoint returned status 503",
			retryable: true,
		},
		{
			name:      "key fetch failure is retryable",
			err:       NewError(ErrorCodeKeyFetchFailed, "request failed", context.DeadlineExceeded),
			sentinel:  ErrKeyFetchFailed,
			message:   "request failed: context deadline exceeded",
			retryable: true,
		},
		{
			name:     "unknown key id",
			err:      NewError(ErrorCodeUnknownKeyID, `no public key for kid "abc"`, nil),
			sentinel: ErrUnknownKeyID,
			message:  `no public key for kid "abc"`,
		},
		{
			name:     "invalid claims names the field",
			err:      NewClaimsError("aud", "unexpected audience"),
			sentinel: ErrInvalidClaims,
			message:  "aud: unexpected audience",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			wrapped := fmt.Errorf("verify: %w", testCase.err)

			assert.ErrorIs(t, wrapped, testCase.sentinel)
			assert.Equal(t, testCase.message, testCase.err.Error())
			assert.Equal(t, testCase.retryable, IsRetryable(wrapped))
			assert.Equal(t, testCase.err.Code, Code(wrapped))

			for _, other := range []error{ErrInvalidCertificate, ErrTokenExchangeFailed, ErrUnknownKeyID, ErrMalformedToken, ErrInvalidSignature, ErrInvalidClaims} {
				if other != testCase.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}

	t.Run("details are unwrapped", func(t *testing.T) {
		err := NewError(ErrorCodeKeyFetchFailed, "request failed", context.DeadlineExceeded)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("code of a foreign error is empty", func(t *testing.T) {
		assert.Empty(t, Code(errors.New("boom")))
		assert.False(t, IsRetryable(errors.New("boom")))
	})
}
