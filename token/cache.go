package token

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/svcauth/go-svcauth/assertion"
	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/core"
)

const (
	// DefaultLifetime is the lifetime of the assertions the cache signs.
	DefaultLifetime = time.Hour

	// DefaultExpiryMargin is how long before expiry a token stops being served.
	DefaultExpiryMargin = time.Minute

	defaultTimeout = 30 * time.Second

	// maxUIDLength is the longest subject id a custom token may carry.
	maxUIDLength = 128

	refreshKey = "access_token"
)

// Cache serves the service account's access token, refreshing it lazily.
//
// All callers that find the slot stale while a refresh is running wait for
// that refresh and receive its result. A caller whose context ends stops
// waiting; the refresh itself continues, bounded by the refresh timeout, so
// the next caller can still benefit from it. A refresh that overlaps an
// Invalidate still answers its waiters but does not fill the slot.
type Cache struct {
	builder         *assertion.Builder
	certs           certificate.Source
	exchanger       Exchanger
	customExchanger Exchanger
	store           Store
	lifetime        time.Duration
	margin          time.Duration
	refreshTimeout  time.Duration
	clock           clockwork.Clock
	logger          core.Logger

	group singleflight.Group
	// generation is bumped by Invalidate.
	generation atomic.Uint64
}

// AccessToken returns a fresh access token, exchanging a new assertion only
// when the cached one is missing or within the expiry margin.
func (c *Cache) AccessToken(ctx context.Context) (*Token, error) {
	if tok := c.cached(ctx); tok != nil {
		return tok, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	}
}

func (c *Cache) refresh(ctx context.Context) (*Token, error) {
	generation := c.generation.Load()

	// A shared store may have been filled by another process meanwhile.
	if tok := c.cached(ctx); tok != nil {
		return tok, nil
	}

	start := c.clock.Now()

	signed, err := c.sign(ctx, "")
	if err != nil {
		c.logger.Error("could not sign service assertion", "error", err)
		return nil, err
	}

	tok, err := c.exchanger.Exchange(ctx, signed)
	if err != nil {
		err = exchangeError(err)
		c.logger.Error("access token exchange failed",
			"error", err,
			"retryable", core.IsRetryable(err),
			"duration", c.clock.Since(start))
		return nil, err
	}

	if c.generation.Load() != generation {
		c.logger.Debug("cache invalidated during refresh, token not stored")
		return tok, nil
	}
	if err := c.store.Save(ctx, tok, tok.ExpiresAt.Sub(c.clock.Now())); err != nil {
		c.logger.Warn("could not store access token", "error", err)
	}

	c.logger.Debug("access token refreshed",
		"expires_at", tok.ExpiresAt,
		"duration", c.clock.Since(start))

	return tok, nil
}

// cached returns the stored token if it may still be served. Store errors
// count as a miss.
func (c *Cache) cached(ctx context.Context) *Token {
	tok, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("could not load cached access token", "error", err)
		return nil
	}
	if !tok.Fresh(c.clock.Now(), c.margin) {
		return nil
	}
	return tok
}

// CustomToken signs an assertion bound to uid and exchanges it with the
// custom exchanger. Custom tokens are never cached.
func (c *Cache) CustomToken(ctx context.Context, uid string, opts ...assertion.BuildOption) (*Token, error) {
	signed, err := c.SignCustomToken(ctx, uid, opts...)
	if err != nil {
		return nil, err
	}

	tok, err := c.customExchanger.Exchange(ctx, signed)
	if err != nil {
		err = exchangeError(err)
		c.logger.Error("custom token exchange failed", "error", err, "uid", uid)
		return nil, err
	}

	return tok, nil
}

// SignCustomToken builds the assertion bound to uid without exchanging it.
func (c *Cache) SignCustomToken(ctx context.Context, uid string, opts ...assertion.BuildOption) (string, error) {
	if err := validateUID(uid); err != nil {
		return "", err
	}
	return c.sign(ctx, uid, opts...)
}

// Invalidate empties the token slot so the next AccessToken call refreshes.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.group.Forget(refreshKey)
	return c.store.Clear(ctx)
}

// TokenSource adapts the cache to oauth2.TokenSource. ctx is used for every
// refresh the source triggers.
func (c *Cache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, cache: c}
}

type tokenSource struct {
	ctx   context.Context
	cache *Cache
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.cache.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

func (c *Cache) sign(ctx context.Context, uid string, opts ...assertion.BuildOption) (string, error) {
	cert, err := c.certs.Certificate(ctx)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCertificate) {
			return "", err
		}
		return "", core.NewError(core.ErrorCodeInvalidCertificate, "certificate unavailable", err)
	}

	return c.builder.Build(cert, c.lifetime, uid, opts...)
}

func validateUID(uid string) error {
	if uid == "" {
		return errors.New("uid cannot be empty")
	}
	if len(uid) > maxUIDLength {
		return fmt.Errorf("uid cannot be longer than %d characters", maxUIDLength)
	}
	return nil
}

func exchangeError(err error) error {
	var e *core.Error
	if errors.As(err, &e) {
		return err
	}
	return core.NewError(core.ErrorCodeTokenExchangeFailed, "token exchange failed", err)
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
