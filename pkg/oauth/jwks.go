package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// jwksCacheEntry holds one authorization server's cached key set.
type jwksCacheEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

// JWKSCache fetches and caches JWKS documents per URL, with an
// independent TTL and an independent in-flight fetch per URL. A key
// rollover at one issuer never blocks, and is never served stale for,
// any other issuer.
type JWKSCache struct {
	ttl    time.Duration
	client *http.Client

	mu      sync.Mutex
	entries map[string]*jwksCacheEntry
	inFlight map[string]*sync.WaitGroup
}

// NewJWKSCache builds a cache with the given TTL and HTTP client. A zero
// ttl defaults to 300s.
func NewJWKSCache(ttl time.Duration, client *http.Client) *JWKSCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &JWKSCache{
		ttl:      ttl,
		client:   client,
		entries:  make(map[string]*jwksCacheEntry),
		inFlight: make(map[string]*sync.WaitGroup),
	}
}

// Get returns the cached key set for url, fetching it if absent or
// expired. Concurrent callers for the same URL share a single fetch.
func (c *JWKSCache) Get(ctx context.Context, url string) (jwk.Set, error) {
	if set, ok := c.cached(url); ok {
		return set, nil
	}
	return c.fetch(ctx, url)
}

// ForceRefresh bypasses the TTL and re-fetches url unconditionally. Used
// when a cached key set is missing the `kid` a token references, so a
// key rollover is picked up with one refetch before the token is
// rejected.
func (c *JWKSCache) ForceRefresh(ctx context.Context, url string) (jwk.Set, error) {
	return c.fetch(ctx, url)
}

func (c *JWKSCache) cached(url string) (jwk.Set, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.set, true
}

func (c *JWKSCache) fetch(ctx context.Context, url string) (jwk.Set, error) {
	c.mu.Lock()
	if wg, ok := c.inFlight[url]; ok {
		c.mu.Unlock()
		wg.Wait()
		if set, ok := c.cached(url); ok {
			return set, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s", url)
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.inFlight[url] = wg
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, url)
		c.mu.Unlock()
		wg.Done()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set, err := jwk.Fetch(fetchCtx, url, jwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", url, err)
	}

	c.mu.Lock()
	c.entries[url] = &jwksCacheEntry{set: set, fetchedAt: time.Now()}
	c.mu.Unlock()

	return set, nil
}
