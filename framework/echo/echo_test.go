package svcecho

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/verifier"
)

const validToken = "header.payload.signature"

var stubVerifier = core.VerifierFunc(func(_ context.Context, tokenString string) (any, error) {
	if tokenString == validToken {
		return &verifier.Claims{UserID: "user-123"}, nil
	}
	return nil, core.NewError(core.ErrorCodeUnknownKeyID, "no public key with id \"abc\"", nil)
})

func serve(t *testing.T, authHeader string, opts ...Option) *httptest.ResponseRecorder {
	t.Helper()

	mw, err := New(append([]Option{WithVerifier(stubVerifier)}, opts...)...)
	require.NoError(t, err)

	e := echo.New()
	e.Use(mw)
	e.GET("/api", func(c echo.Context) error {
		claims, err := GetClaims(c, "")
		if err != nil {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, claims.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp svcauth.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ErrorCode
}

func TestMiddleware(t *testing.T) {
	t.Run("a valid token reaches the handler", func(t *testing.T) {
		rec := serve(t, "Bearer "+validToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-123", rec.Body.String())
	})

	t.Run("an unknown key id is rejected", func(t *testing.T) {
		rec := serve(t, "Bearer a.b.c")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, core.ErrorCodeUnknownKeyID, errorCode(t, rec))
	})

	t.Run("a missing token is rejected", func(t *testing.T) {
		rec := serve(t, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, core.ErrorCodeTokenMissing, errorCode(t, rec))
	})

	t.Run("credentials optional", func(t *testing.T) {
		rec := serve(t, "", WithCredentialsOptional(true))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("skipped requests are not verified", func(t *testing.T) {
		rec := serve(t, "Bearer a.b.c", WithSkipper(func(echo.Context) bool { return true }))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("an error handler may hand the error to echo", func(t *testing.T) {
		rec := serve(t, "Bearer a.b.c", WithErrorHandler(func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("claims under a custom key", func(t *testing.T) {
		mw, err := New(WithVerifier(stubVerifier), WithContextKey("identity"))
		require.NoError(t, err)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+validToken)
		c := e.NewContext(req, httptest.NewRecorder())

		err = mw(func(c echo.Context) error {
			_, err := GetClaims(c, "")
			assert.ErrorIs(t, err, ErrMissingClaims)

			claims, err := GetClaims(c, "identity")
			require.NoError(t, err)
			assert.Equal(t, "user-123", claims.UserID)
			assert.True(t, svcauth.HasClaims(c.Request().Context()))
			return nil
		})(c)
		assert.NoError(t, err)
	})
}

func TestGetClaims_InvalidType(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(DefaultClaimsKey, "not claims")

	_, err := GetClaims(c, "")
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestNew(t *testing.T) {
	_, err := New()
	assert.EqualError(t, err, "verifier is required, use WithVerifier option")

	testCases := []struct {
		name   string
		option Option
		want   string
	}{
		{"nil verifier", WithVerifier(nil), "verifier cannot be nil"},
		{"nil error handler", WithErrorHandler(nil), "error handler cannot be nil"},
		{"empty context key", WithContextKey(""), "context key cannot be empty"},
		{"nil token extractor", WithTokenExtractor(nil), "token extractor cannot be nil"},
		{"nil skipper", WithSkipper(nil), "skipper cannot be nil"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := New(WithVerifier(stubVerifier), testCase.option)
			assert.EqualError(t, err, testCase.want)
		})
	}
}
