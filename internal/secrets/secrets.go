// Package secrets wraps an external secret provider with a TTL cache.
// A failed live fetch falls back to the last cached value, so transient
// provider outages degrade gracefully instead of failing channel sends.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eventfuse/eventfuse/internal/logger"
)

// Provider fetches a secret value by name.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvProvider resolves secrets from environment variables, the default when
// no managed secret store is wired in.
type EnvProvider struct{}

// GetSecret reads SECRET_<NAME> with dashes mapped to underscores
func (EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	key := "SECRET_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

type cacheEntry struct {
	value  string
	expiry time.Time
}

// Cache is a TTL cache over a Provider. Construct one per component under
// test; it is not a package-level global.
type Cache struct {
	provider Provider
	ttl      time.Duration
	mu       sync.Mutex
	entries  map[string]cacheEntry
	now      func() time.Time
}

// NewCache creates a secret cache with the given TTL
func NewCache(provider Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Get returns the secret, from cache when fresh. On a live-fetch failure a
// stale cached value is returned rather than the error.
func (c *Cache) Get(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	entry, cached := c.entries[name]
	c.mu.Unlock()

	if cached && c.now().Before(entry.expiry) {
		return entry.value, nil
	}

	value, err := c.provider.GetSecret(ctx, name)
	if err != nil {
		if cached {
			logger.Warn("Secret fetch failed, serving stale cached value",
				"secret", name,
				"error", err,
			)
			return entry.value, nil
		}
		return "", err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{value: value, expiry: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops a cached entry
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}
