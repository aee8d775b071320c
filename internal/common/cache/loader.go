package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"catalog-search/internal/common/metrics"
)

const defaultFetchTimeout = 2 * time.Minute

// Loader fronts a Cache with request coalescing: concurrent misses for the
// same key run the fetch once and share its result. Only successful fetches
// are stored.
//
// The shared fetch is detached from the caller that started it, so one
// caller giving up never fails the others waiting on the same key. It is
// bounded by the loader's own timeout instead.
type Loader struct {
	cache   Cache
	name    string
	timeout time.Duration
	group   singleflight.Group
}

// NewLoader labels cache metrics with name.
func NewLoader(c Cache, name string) *Loader {
	return &Loader{cache: c, name: name, timeout: defaultFetchTimeout}
}

// WithTimeout sets the upper bound of one shared fetch, retries included.
func (l *Loader) WithTimeout(d time.Duration) *Loader {
	if d > 0 {
		l.timeout = d
	}
	return l
}

// Load returns the cached value for key or runs fetch and caches its result.
// A caller whose ctx ends first gets ctx.Err(); the fetch keeps running for
// the remaining callers and still fills the cache.
func (l *Loader) Load(ctx context.Context, key string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := l.cache.Get(ctx, key); ok {
		metrics.CacheOperations.WithLabelValues(l.name, "hit").Inc()
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.CacheOperations.WithLabelValues(l.name, "miss").Inc()

	ch := l.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		if v, ok := l.cache.Get(fetchCtx, key); ok {
			return v, nil
		}
		body, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(fetchCtx, key, body)
		return body, nil
	})

	select {
	case <-ctx.Done():
		metrics.CacheOperations.WithLabelValues(l.name, "abandoned").Inc()
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheOperations.WithLabelValues(l.name, "coalesced").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Cache exposes the underlying store.
func (l *Loader) Cache() Cache {
	return l.cache
}
