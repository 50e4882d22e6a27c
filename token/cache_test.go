package token_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcauth/go-svcauth/assertion"
	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/internal/testkeys"
	"github.com/svcauth/go-svcauth/token"
	"github.com/svcauth/go-svcauth/token/tokentest"
)

const tokenEndpointURL = "https://oauth2.example.com/token"

type fixture struct {
	clock     *clockwork.FakeClock
	exchanger *tokentest.Exchanger
	cache     *token.Cache
	keys      *testkeys.KeySet
}

func newFixture(t *testing.T, opts ...token.Option) *fixture {
	t.Helper()

	keys := testkeys.Generate(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	exchanger := tokentest.NewExchanger(clock, time.Hour)

	builder, err := assertion.New(
		assertion.WithAudience(tokenEndpointURL),
		assertion.WithScopes("https://www.googleapis.com/auth/cloud-platform"),
		assertion.WithClock(clock),
	)
	require.NoError(t, err)

	cache, err := token.NewCache(append([]token.Option{
		token.WithBuilder(builder),
		token.WithCertificateSource(certificate.Static(&certificate.Certificate{
			PrivateKey:  keys.PrivateKeyPEM(t),
			ClientEmail: "svc@project.iam",
		})),
		token.WithExchanger(exchanger),
		token.WithClock(clock),
	}, opts...)...)
	require.NoError(t, err)

	return &fixture{clock: clock, exchanger: exchanger, cache: cache, keys: keys}
}

func TestCache_AccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("two calls within the cached window share one exchange", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		f.clock.Advance(30 * time.Minute)
		second, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		assert.Equal(t, first.AccessToken, second.AccessToken)
		assert.Equal(t, 1, f.exchanger.Calls())
	})

	t.Run("a call after expiry triggers exactly one exchange and moves expires_at", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		second, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, f.exchanger.Calls())
		assert.NotEqual(t, first.AccessToken, second.AccessToken)
		assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	})

	t.Run("the expiry margin makes a nearly expired token stale", func(t *testing.T) {
		f := newFixture(t, token.WithExpiryMargin(5*time.Minute))

		_, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		f.clock.Advance(54 * time.Minute)
		_, err = f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, f.exchanger.Calls())

		f.clock.Advance(time.Minute)
		_, err = f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, f.exchanger.Calls())
	})

	t.Run("it exchanges a service assertion without uid", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		claims, err := assertion.ParseUnverified(f.exchanger.Assertions()[0])
		require.NoError(t, err)
		assert.Equal(t, "svc@project.iam", claims["iss"])
		assert.Equal(t, tokenEndpointURL, claims["aud"])
		assert.NotContains(t, claims, "uid")
		assert.Equal(t, float64(3600), claims["exp"].(float64)-claims["iat"].(float64))
	})

	t.Run("a failed refresh surfaces a retryable error and the next call retries", func(t *testing.T) {
		f := newFixture(t, token.WithExpiryMargin(10*time.Minute))

		first, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		require.NoError(t, f.cache.Invalidate(ctx))
		f.exchanger.SetErr(errors.New("connection refused"))

		_, err = f.cache.AccessToken(ctx)
		assert.ErrorIs(t, err, core.ErrTokenExchangeFailed)
		assert.True(t, core.IsRetryable(err))

		f.exchanger.SetErr(nil)
		second, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first.AccessToken, second.AccessToken)
	})

	t.Run("an expired token is never served after a failed refresh", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		f.exchanger.SetErr(errors.New("connection refused"))
		f.clock.Advance(2 * time.Hour)

		tok, err := f.cache.AccessToken(ctx)
		assert.Nil(t, tok)
		assert.ErrorIs(t, err, core.ErrTokenExchangeFailed)
	})

	t.Run("a certificate source failure is an invalid certificate", func(t *testing.T) {
		builder, err := assertion.New(assertion.WithAudience(tokenEndpointURL))
		require.NoError(t, err)
		exchanger := tokentest.NewExchanger(clockwork.NewRealClock(), time.Hour)

		cache, err := token.NewCache(
			token.WithBuilder(builder),
			token.WithCertificateSource(certificate.SourceFunc(func(context.Context) (*certificate.Certificate, error) {
				return nil, errors.New("secret not found")
			})),
			token.WithExchanger(exchanger),
		)
		require.NoError(t, err)

		_, err = cache.AccessToken(ctx)
		assert.ErrorIs(t, err, core.ErrInvalidCertificate)
		assert.Zero(t, exchanger.Calls())
	})

	t.Run("concurrent callers share a single refresh", func(t *testing.T) {
		f := newFixture(t)
		f.exchanger.Gate = make(chan struct{})

		const callers = 20
		var wg sync.WaitGroup
		results := make([]string, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok, err := f.cache.AccessToken(ctx)
				if assert.NoError(t, err) {
					results[i] = tok.AccessToken
				}
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(f.exchanger.Gate)
		wg.Wait()

		assert.Equal(t, 1, f.exchanger.Calls())
		for _, got := range results {
			assert.Equal(t, "token-1", got)
		}
	})

	t.Run("a waiter whose context ends stops waiting", func(t *testing.T) {
		f := newFixture(t)
		f.exchanger.Gate = make(chan struct{})
		defer close(f.exchanger.Gate)

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := f.cache.AccessToken(waitCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("an invalidation during a refresh keeps that token out of the slot", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

		f := newFixture(t, token.WithExchanger(token.ExchangerFunc(func(context.Context, string) (*token.Token, error) {
			n := calls.Add(1)
			if n == 1 {
				close(entered)
				<-release
			}
			return &token.Token{
				AccessToken: fmt.Sprintf("token-%d", n),
				TokenType:   "Bearer",
				ExpiresAt:   clock.Now().Add(time.Hour),
			}, nil
		})), token.WithClock(clock))

		done := make(chan *token.Token, 1)
		go func() {
			tok, err := f.cache.AccessToken(ctx)
			assert.NoError(t, err)
			done <- tok
		}()

		<-entered
		require.NoError(t, f.cache.Invalidate(ctx))
		close(release)

		first := <-done
		require.NotNil(t, first)
		assert.Equal(t, "token-1", first.AccessToken, "waiters of the running refresh still get its token")

		second, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-2", second.AccessToken)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("a one second lifetime keeps exp after iat", func(t *testing.T) {
		f := newFixture(t, token.WithLifetime(time.Second))

		_, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)

		claims, err := assertion.ParseUnverified(f.exchanger.Assertions()[0])
		require.NoError(t, err)
		assert.Equal(t, float64(1), claims["exp"].(float64)-claims["iat"].(float64))
	})
}

func TestCache_CustomToken(t *testing.T) {
	ctx := context.Background()

	t.Run("custom tokens bypass the cache", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.cache.CustomToken(ctx, "user-1")
		require.NoError(t, err)
		second, err := f.cache.CustomToken(ctx, "user-1")
		require.NoError(t, err)

		assert.NotEqual(t, first.AccessToken, second.AccessToken)
		assert.Equal(t, 2, f.exchanger.Calls())

		claims, err := assertion.ParseUnverified(f.exchanger.Assertions()[1])
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims["uid"])
	})

	t.Run("custom tokens do not disturb the cached access token", func(t *testing.T) {
		f := newFixture(t)

		access, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		_, err = f.cache.CustomToken(ctx, "user-1")
		require.NoError(t, err)

		again, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, access.AccessToken, again.AccessToken)
	})

	t.Run("it routes custom tokens to the custom exchanger", func(t *testing.T) {
		custom := tokentest.NewExchanger(clockwork.NewRealClock(), time.Hour)
		f := newFixture(t, token.WithCustomExchanger(custom))

		_, err := f.cache.CustomToken(ctx, "user-1")
		require.NoError(t, err)

		assert.Equal(t, 1, custom.Calls())
		assert.Zero(t, f.exchanger.Calls())
	})

	t.Run("sign only returns a verifiable assertion and makes no network call", func(t *testing.T) {
		f := newFixture(t)

		signed, err := f.cache.SignCustomToken(ctx, "user-7", assertion.WithDeveloperClaims(map[string]any{"tier": "gold"}))
		require.NoError(t, err)
		assert.Zero(t, f.exchanger.Calls())

		claims, err := assertion.ParseUnverified(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-7", claims["uid"])
		assert.Equal(t, map[string]any{"tier": "gold"}, claims["claims"])
	})

	t.Run("it validates the uid", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.cache.CustomToken(ctx, "")
		assert.EqualError(t, err, "uid cannot be empty")

		long := make([]byte, 129)
		for i := range long {
			long[i] = 'u'
		}
		_, err = f.cache.SignCustomToken(ctx, string(long))
		assert.EqualError(t, err, "uid cannot be longer than 128 characters")
		assert.Zero(t, f.exchanger.Calls())
	})
}

func TestCache_TokenSource(t *testing.T) {
	f := newFixture(t)
	source := f.cache.TokenSource(context.Background())

	first, err := source.Token()
	require.NoError(t, err)
	second, err := source.Token()
	require.NoError(t, err)

	assert.Equal(t, "token-1", first.AccessToken)
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.Equal(t, f.clock.Now().Add(time.Hour), first.Expiry)
	assert.Equal(t, 1, f.exchanger.Calls())
}

func TestCache_RedisStore(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := token.NewRedisStore(client, "svcauth:access-token")
	require.NoError(t, err)

	first := newFixture(t, token.WithStore(store))
	tok, err := first.cache.AccessToken(ctx)
	require.NoError(t, err)

	t.Run("the token is stored with its remaining lifetime", func(t *testing.T) {
		assert.True(t, server.Exists("svcauth:access-token"))
		assert.Equal(t, time.Hour, server.TTL("svcauth:access-token"))
	})

	t.Run("a second process sharing the store does not exchange", func(t *testing.T) {
		second := newFixture(t, token.WithStore(store))

		shared, err := second.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, tok.AccessToken, shared.AccessToken)
		assert.Zero(t, second.exchanger.Calls())
	})

	t.Run("an unreachable store counts as a miss", func(t *testing.T) {
		broken, err := token.NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "k")
		require.NoError(t, err)

		f := newFixture(t, token.WithStore(broken))
		got, err := f.cache.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-1", got.AccessToken)
		assert.Equal(t, 1, f.exchanger.Calls())
	})
}

func TestNewCache(t *testing.T) {
	builder, err := assertion.New(assertion.WithAudience(tokenEndpointURL))
	require.NoError(t, err)
	source := certificate.Static(&certificate.Certificate{})
	exchanger := tokentest.NewExchanger(clockwork.NewRealClock(), time.Hour)

	testCases := []struct {
		name string
		opts []token.Option
		err  string
	}{
		{
			name: "missing builder",
			opts: []token.Option{token.WithCertificateSource(source), token.WithExchanger(exchanger)},
			err:  "assertion builder is required (use WithBuilder)",
		},
		{
			name: "missing certificate source",
			opts: []token.Option{token.WithBuilder(builder), token.WithExchanger(exchanger)},
			err:  "certificate source is required (use WithCertificateSource)",
		},
		{
			name: "missing exchanger",
			opts: []token.Option{token.WithBuilder(builder), token.WithCertificateSource(source)},
			err:  "exchanger is required (use WithExchanger)",
		},
		{
			name: "lifetime over one hour",
			opts: []token.Option{token.WithLifetime(2 * time.Hour)},
			err:  "invalid option: lifetime cannot exceed 1 hour",
		},
		{
			name: "sub-second lifetime",
			opts: []token.Option{token.WithLifetime(500 * time.Millisecond)},
			err:  "invalid option: lifetime must be a whole number of seconds",
		},
		{
			name: "fractional lifetime",
			opts: []token.Option{token.WithLifetime(1500 * time.Millisecond)},
			err:  "invalid option: lifetime must be a whole number of seconds",
		},
		{
			name: "negative margin",
			opts: []token.Option{token.WithExpiryMargin(-time.Second)},
			err:  "invalid option: expiry margin cannot be negative",
		},
		{
			name: "nil store",
			opts: []token.Option{token.WithStore(nil)},
			err:  "invalid option: store cannot be nil",
		},
		{
			name: "nil logger",
			opts: []token.Option{token.WithLogger(nil)},
			err:  "invalid option: logger cannot be nil",
		},
	}

	for _, testCase := range testCases {
		t.Run("it fails with "+testCase.name, func(t *testing.T) {
			_, err := token.NewCache(testCase.opts...)
			assert.EqualError(t, err, testCase.err)
		})
	}
}
