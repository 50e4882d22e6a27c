package verifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/internal/testkeys"
	"github.com/svcauth/go-svcauth/keys"
	"github.com/svcauth/go-svcauth/verifier"
)

func TestVerifier_WithKeyCache(t *testing.T) {
	const projectID = "my-project"

	current := testkeys.Generate(t)
	rotated := testkeys.Generate(t)

	var (
		requests atomic.Int32
		served   atomic.Pointer[map[string]string]
	)
	initial := map[string]string{current.KeyID: current.CertificatePEM(t)}
	served.Store(&initial)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(*served.Load())
	}))
	t.Cleanup(server.Close)

	keyCache, err := keys.New(
		keys.WithURL(server.URL),
		keys.WithBackgroundRefresh(false),
		keys.WithMinRefreshInterval(0),
	)
	require.NoError(t, err)

	v, err := verifier.New(
		verifier.WithKeyFunc(keyCache.KeyFunc),
		verifier.WithProjectID(projectID),
	)
	require.NoError(t, err)

	now := time.Now()
	claimsFor := func(sub string) jwt.MapClaims {
		return jwt.MapClaims{
			"iss": verifier.DefaultIssuerPrefix + projectID,
			"aud": projectID,
			"sub": sub,
			"iat": now.Add(-time.Minute).Unix(),
			"exp": now.Add(time.Hour).Unix(),
		}
	}

	claims, err := v.VerifyToken(context.Background(), current.Sign(t, claimsFor("alice")))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)

	_, err = v.VerifyToken(context.Background(), current.Sign(t, claimsFor("bob")))
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load(), "a fresh key set is served from the cache")

	next := map[string]string{
		current.KeyID: current.CertificatePEM(t),
		rotated.KeyID: rotated.CertificatePEM(t),
	}
	served.Store(&next)

	claims, err = v.VerifyToken(context.Background(), rotated.Sign(t, claimsFor("carol")))
	require.NoError(t, err, "an unknown kid triggers one refresh")
	assert.Equal(t, "carol", claims.UserID)
	assert.Equal(t, int32(2), requests.Load())

	stranger := testkeys.Generate(t)
	_, err = v.VerifyToken(context.Background(), stranger.Sign(t, claimsFor("mallory")))
	assert.ErrorIs(t, err, core.ErrUnknownKeyID)
	assert.Equal(t, int32(3), requests.Load(), "a kid missing after the refresh is not retried")
}
