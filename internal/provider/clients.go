package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClientCacheSize bounds cached API clients per provider.
const DefaultClientCacheSize = 64

// clientCache reuses API clients per access token with LRU eviction, so a
// refreshed token gets a fresh client and idle ones are dropped.
type clientCache[C any] struct {
	mu    sync.Mutex
	cache *lru.Cache[string, C]
	build func(token string) (C, error)
}

func newClientCache[C any](size int, build func(token string) (C, error)) (*clientCache[C], error) {
	if size <= 0 {
		size = DefaultClientCacheSize
	}
	cache, err := lru.New[string, C](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create client cache: %w", err)
	}
	return &clientCache[C]{cache: cache, build: build}, nil
}

// get returns the cached client for token, building it on a miss.
func (c *clientCache[C]) get(token string) (C, error) {
	key := tokenKey(token)

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.cache.Get(key); ok {
		return client, nil
	}
	client, err := c.build(token)
	if err != nil {
		var zero C
		return zero, err
	}
	c.cache.Add(key, client)
	return client, nil
}

func (c *clientCache[C]) len() int {
	return c.cache.Len()
}

// tokenKey keeps raw tokens out of the cache keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
