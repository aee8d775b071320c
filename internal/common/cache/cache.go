// Package cache holds upstream responses for the lifetime of the client
// instance that owns it. Entries never expire and are never evicted: a catalog
// change is invisible until the owning instance is rebuilt.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the response store shared by every cached upstream operation.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Close() error
}

// Key derives a deterministic key from an operation name and its parameters.
// encoding/json writes map keys in sorted order at every depth, so two
// parameter maps with equal contents hash identically however they were built.
func Key(operation string, params map[string]interface{}) string {
	payload, err := json.Marshal(params)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256(append([]byte(operation+"\x00"), payload...))
	return operation + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process Cache. Entries never expire and no janitor runs.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: gocache.New(gocache.NoExpiration, 0)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.store.Set(key, value, gocache.NoExpiration)
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	return c.store.ItemCount()
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}
