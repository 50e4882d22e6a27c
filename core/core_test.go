package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a mock implementation of Logger for testing.
type mockLogger struct {
	debugCalls []logCall
	infoCalls  []logCall
	warnCalls  []logCall
	errorCalls []logCall
}

type logCall struct {
	msg  string
	args []any
}

func (m *mockLogger) Debug(msg string, args ...any) {
	m.debugCalls = append(m.debugCalls, logCall{msg, args})
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.infoCalls = append(m.infoCalls, logCall{msg, args})
}

func (m *mockLogger) Warn(msg string, args ...any) {
	m.warnCalls = append(m.warnCalls, logCall{msg, args})
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.errorCalls = append(m.errorCalls, logCall{msg, args})
}

func TestNew(t *testing.T) {
	verifier := VerifierFunc(func(ctx context.Context, token string) (any, error) {
		return "claims", nil
	})

	t.Run("successful creation with required options", func(t *testing.T) {
		c, err := New(WithVerifier(verifier))
		require.NoError(t, err)
		assert.False(t, c.credentialsOptional)
		assert.IsType(t, NopLogger{}, c.logger)
	})

	t.Run("successful creation with all options", func(t *testing.T) {
		logger := &mockLogger{}
		c, err := New(
			WithVerifier(verifier),
			WithCredentialsOptional(true),
			WithLogger(logger),
		)
		require.NoError(t, err)
		assert.True(t, c.credentialsOptional)
		assert.Same(t, logger, c.logger)
	})

	t.Run("error when verifier is missing", func(t *testing.T) {
		_, err := New()
		require.Error(t, err)
		assert.Equal(t, ErrorCodeConfigInvalid, Code(err))
	})

	t.Run("error when verifier is nil", func(t *testing.T) {
		_, err := New(WithVerifier(nil))
		assert.EqualError(t, err, "verifier cannot be nil")
	})

	t.Run("error when logger is nil", func(t *testing.T) {
		_, err := New(WithVerifier(verifier), WithLogger(nil))
		assert.EqualError(t, err, "logger cannot be nil")
	})
}

func TestCore_CheckToken(t *testing.T) {
	t.Run("returns claims for a valid token", func(t *testing.T) {
		logger := &mockLogger{}
		c, err := New(
			WithVerifier(VerifierFunc(func(ctx context.Context, token string) (any, error) {
				assert.Equal(t, "good", token)
				return "claims", nil
			})),
			WithLogger(logger),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, "claims", claims)
		assert.Len(t, logger.debugCalls, 1)
	})

	t.Run("missing token is an error when credentials are required", func(t *testing.T) {
		logger := &mockLogger{}
		c, err := New(WithVerifier(VerifierFunc(func(context.Context, string) (any, error) {
			t.Fatal("verifier must not be called")
			return nil, nil
		})), WithLogger(logger))
		require.NoError(t, err)

		_, err = c.CheckToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrTokenMissing)
		assert.Len(t, logger.warnCalls, 1)
	})

	t.Run("missing token passes when credentials are optional", func(t *testing.T) {
		c, err := New(
			WithVerifier(VerifierFunc(func(context.Context, string) (any, error) { return nil, errors.New("unused") })),
			WithCredentialsOptional(true),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "")
		assert.NoError(t, err)
		assert.Nil(t, claims)
	})

	t.Run("verifier errors are returned unchanged and logged", func(t *testing.T) {
		logger := &mockLogger{}
		verifyErr := NewClaimsError("exp", "token has expired")
		c, err := New(
			WithVerifier(VerifierFunc(func(context.Context, string) (any, error) { return nil, verifyErr })),
			WithLogger(logger),
		)
		require.NoError(t, err)

		_, err = c.CheckToken(context.Background(), "expired")
		assert.Same(t, verifyErr, err)
		require.Len(t, logger.errorCalls, 1)
		assert.Contains(t, logger.errorCalls[0].args, ErrorCodeInvalidClaims)
	})
}
