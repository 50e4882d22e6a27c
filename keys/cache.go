// Package keys fetches and caches the public keys an identity provider signs
// its tokens with.
package keys

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/core"
	"github.com/svcauth/go-svcauth/internal/oidc"
)

const (
	// SecureTokenURL serves the X.509 certificates that sign Firebase ID tokens.
	SecureTokenURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	// DefaultTTL is used when a response carries no usable max-age.
	DefaultTTL = time.Hour

	// DefaultMinRefreshInterval is the minimum age of a key set before an
	// unknown key id may trigger another fetch.
	DefaultMinRefreshInterval = 30 * time.Second

	defaultTimeout = 30 * time.Second

	// maxBodySize bounds the response body; key sets are typically under 10KB.
	maxBodySize = 1 << 20
)

// Cache serves public keys by key id. The current Set is swapped atomically;
// at most one fetch runs at a time.
type Cache struct {
	// url is resolved lazily when discovery is configured. It is only
	// written while fetchMu is held.
	url       string
	issuerURL *url.URL

	httpClient         *http.Client
	defaultTTL         time.Duration
	minRefreshInterval time.Duration
	backgroundRefresh  bool
	clock              clockwork.Clock
	logger             core.Logger

	set        atomic.Pointer[Set]
	fetchMu    sync.Mutex
	refreshing atomic.Bool
}

// GetKey returns the PEM-encoded public key with id kid.
func (c *Cache) GetKey(ctx context.Context, kid string) (string, error) {
	set, err := c.lookup(ctx, kid)
	if err != nil {
		return "", err
	}
	p, _ := set.PEM(kid)
	return p, nil
}

// KeyFunc returns the parsed public key with id kid, for signature
// verification.
func (c *Cache) KeyFunc(ctx context.Context, kid string) (any, error) {
	set, err := c.lookup(ctx, kid)
	if err != nil {
		return nil, err
	}
	k, _ := set.Key(kid)
	return k, nil
}

// GetAllKeys returns a copy of the current key id to PEM mapping, refreshing
// first if the set has expired.
func (c *Cache) GetAllKeys(ctx context.Context) (map[string]string, error) {
	set, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, set.Len())
	for kid, p := range set.pems {
		out[kid] = p
	}
	return out, nil
}

// Set returns the current key set without fetching. It is nil before the
// first successful fetch.
func (c *Cache) Set() *Set {
	return c.set.Load()
}

// lookup returns an unexpired set containing kid. A kid missing from the
// current set causes at most one more fetch, and none if the set is younger
// than the minimum refresh interval.
func (c *Cache) lookup(ctx context.Context, kid string) (*Set, error) {
	set, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	if set.has(kid) {
		return set, nil
	}

	set, err = c.fetch(ctx, func(s *Set) bool {
		return s.has(kid) || c.clock.Since(s.fetchedAt) < c.minRefreshInterval
	})
	if err != nil {
		return nil, err
	}
	if !set.has(kid) {
		c.logger.Warn("public key not found", "kid", kid, "available", set.Len())
		return nil, core.NewError(core.ErrorCodeUnknownKeyID, fmt.Sprintf("no public key with id %q", kid), nil)
	}

	return set, nil
}

// current returns an unexpired set, fetching one if needed.
func (c *Cache) current(ctx context.Context) (*Set, error) {
	now := c.clock.Now()

	// Fast path: unexpired set
	if set := c.set.Load(); set.fresh(now) {
		if c.backgroundRefresh && !now.Before(set.refreshAt) && c.refreshing.CompareAndSwap(false, true) {
			go c.refreshInBackground(set)
		}
		return set, nil
	}

	return c.fetch(ctx, func(s *Set) bool {
		return s.fresh(c.clock.Now())
	})
}

// fetch loads a new set unless, once fetchMu is held, satisfied reports that
// the set stored by a concurrent fetch already suffices.
func (c *Cache) fetch(ctx context.Context, satisfied func(*Set) bool) (*Set, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Double-check after acquiring fetch lock
	if set := c.set.Load(); set != nil && satisfied(set) {
		return set, nil
	}

	set, err := c.load(ctx)
	if err != nil {
		c.logger.Error("public key refresh failed", "error", err)
		return nil, err
	}

	c.set.Store(set)
	return set, nil
}

// refreshInBackground refreshes a set that reached 80% of its lifetime so
// expiry does not block callers.
func (c *Cache) refreshInBackground(seen *Set) {
	defer c.refreshing.Store(false)

	timeout := c.httpClient.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := c.fetch(ctx, func(s *Set) bool {
		return s != seen
	})
	if err != nil {
		c.logger.Warn("background public key refresh failed", "error", err)
	}
}

// load performs one HTTP fetch and builds a Set from it.
func (c *Cache) load(ctx context.Context) (*Set, error) {
	endpoint, err := c.endpoint(ctx)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "could not discover public key URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.clock.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, fmt.Sprintf("request returned status %d, expected 200", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "failed to read response", err)
	}

	set, skipped, err := parseSet(body)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeKeyFetchFailed, "failed to parse public keys", err)
	}
	if len(skipped) > 0 {
		c.logger.Warn("skipped unusable public keys", "kids", skipped)
	}

	ttl := parseCacheControl(resp.Header.Get("Cache-Control"))
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := c.clock.Now()
	set.fetchedAt = now
	set.expiresAt = now.Add(ttl)
	set.refreshAt = now.Add(ttl * 4 / 5)

	c.logger.Debug("public keys refreshed",
		"url", endpoint,
		"keys", set.Len(),
		"ttl", ttl,
		"duration", c.clock.Since(start))

	return set, nil
}

// endpoint returns the public key URL, running discovery on first use. A
// failed discovery is retried by the next fetch. Callers hold fetchMu.
func (c *Cache) endpoint(ctx context.Context) (string, error) {
	if c.url != "" {
		return c.url, nil
	}

	wkEndpoints, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, c.httpClient, *c.issuerURL, c.issuerURL.String())
	if err != nil {
		return "", err
	}

	c.url = wkEndpoints.JWKSURI
	c.logger.Info("discovered public key URL", "issuer", c.issuerURL.String(), "url", c.url)
	return c.url, nil
}

// parseCacheControl extracts max-age from a Cache-Control header.
// Returns 0 if max-age is not present, invalid, or outside [1s, 7d].
func parseCacheControl(cacheControl string) time.Duration {
	const (
		maxAgePrefix = "max-age="
		minTTL       = 1 * time.Second
		maxTTL       = 7 * 24 * time.Hour
	)

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, maxAgePrefix) {
			continue
		}

		seconds, err := strconv.ParseInt(strings.TrimPrefix(directive, maxAgePrefix), 10, 64)
		if err != nil || seconds <= 0 {
			continue
		}

		ttl := time.Duration(seconds) * time.Second
		if ttl < minTTL || ttl > maxTTL {
			return 0
		}
		return ttl
	}

	return 0
}
