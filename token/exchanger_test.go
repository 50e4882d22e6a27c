package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcauth/go-svcauth/core"
)

func TestHTTPExchanger_Exchange(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	t.Run("it posts a jwt-bearer grant and decodes the token", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, GrantTypeJWTBearer, r.PostForm.Get("grant_type"))
			assert.Equal(t, "signed.assertion.value", r.PostForm.Get("assertion"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"ya29.token","expires_in":3599,"token_type":"Bearer"}`))
		}))
		defer server.Close()

		exchanger, err := NewHTTPExchanger(server.URL, WithExchangeClock(clock))
		require.NoError(t, err)

		tok, err := exchanger.Exchange(context.Background(), "signed.assertion.value")
		require.NoError(t, err)

		assert.Equal(t, "ya29.token", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.TokenType)
		assert.Equal(t, now.Add(3599*time.Second), tok.ExpiresAt)
		assert.Equal(t, int32(1), requests.Load())
	})

	t.Run("it accepts expires_in encoded as a string", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":"3600"}`))
		}))
		defer server.Close()

		exchanger, err := NewHTTPExchanger(server.URL, WithExchangeClock(clock))
		require.NoError(t, err)

		tok, err := exchanger.Exchange(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)
		assert.Equal(t, "Bearer", tok.TokenType)
	})

	t.Run("it uses a custom grant type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "urn:example:custom-token", r.PostForm.Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":60}`))
		}))
		defer server.Close()

		exchanger, err := NewHTTPExchanger(server.URL, WithGrantType("urn:example:custom-token"))
		require.NoError(t, err)

		_, err = exchanger.Exchange(context.Background(), "a")
		require.NoError(t, err)
	})

	testCases := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "a structured error", status: http.StatusBadRequest, body: `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`, wantDetail: "invalid_grant: Invalid JWT Signature."},
		{name: "an unstructured error", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		{name: "an undecodable body", status: http.StatusOK, body: `{"access_token":`},
		{name: "a missing access token", status: http.StatusOK, body: `{"expires_in":3600}`},
		{name: "a missing lifetime", status: http.StatusOK, body: `{"access_token":"t"}`},
	}
	for _, testCase := range testCases {
		t.Run("it reports "+testCase.name+" as a failed exchange", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			exchanger, err := NewHTTPExchanger(server.URL)
			require.NoError(t, err)

			_, err = exchanger.Exchange(context.Background(), "secret.assertion.sig")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrTokenExchangeFailed)
			assert.True(t, core.IsRetryable(err))
			assert.NotContains(t, err.Error(), "secret.assertion.sig")

			if testCase.wantDetail != "" {
				var er *ErrorResponse
				require.True(t, errors.As(err, &er))
				assert.Equal(t, testCase.wantDetail, er.Error())
			}
		})
	}

	t.Run("it reports a timeout as a failed exchange", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		exchanger, err := NewHTTPExchanger(server.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
		require.NoError(t, err)

		_, err = exchanger.Exchange(context.Background(), "a")
		assert.ErrorIs(t, err, core.ErrTokenExchangeFailed)
	})
}

func TestNewHTTPExchanger(t *testing.T) {
	_, err := NewHTTPExchanger("")
	assert.EqualError(t, err, "token URL is required")

	_, err = NewHTTPExchanger("not a url")
	assert.ErrorContains(t, err, "invalid token URL")

	_, err = NewHTTPExchanger("https://oauth2.example.com/token", WithHTTPClient(nil))
	assert.EqualError(t, err, "invalid option: HTTP client cannot be nil")

	_, err = NewHTTPExchanger("https://oauth2.example.com/token", WithGrantType(""))
	assert.EqualError(t, err, "invalid option: grant type cannot be empty")
}

func TestToken(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &Token{AccessToken: "ya29.secret", TokenType: "Bearer", ExpiresAt: now.Add(time.Hour)}

	assert.True(t, tok.Fresh(now, time.Minute))
	assert.False(t, tok.Fresh(now.Add(59*time.Minute), time.Minute))
	assert.False(t, (*Token)(nil).Fresh(now, 0))
	assert.NotContains(t, tok.String(), "ya29.secret")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	tok := &Token{AccessToken: "a"}
	require.NoError(t, store.Save(ctx, tok, time.Hour))
	tok.AccessToken = "mutated"

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
