// Package upstream talks to the third-party catalog: search, batch detail
// enrichment and recommendations. Every call goes through the response
// cache and the retry executor.
package upstream

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	apperrors "catalog-search/internal/common/errors"
	apphttp "catalog-search/internal/common/http"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/metrics"
	"catalog-search/internal/common/retry"
)

// Getter is the slice of the HTTP session the clients need.
type Getter interface {
	Get(ctx context.Context, operation, rawURL string, params url.Values, timeout time.Duration) ([]byte, error)
}

var _ Getter = (*apphttp.Session)(nil)

// fetcher runs one cached, retried GET. Only successful bodies reach the cache.
type fetcher struct {
	http   Getter
	loader *cache.Loader
	policy retry.Policy
	log    logger.Logger
}

func newFetcher(http Getter, loader *cache.Loader, policy retry.Policy, log logger.Logger) fetcher {
	return fetcher{http: http, loader: loader, policy: policy, log: log}
}

func (f fetcher) fetch(ctx context.Context, operation, endpoint string, params map[string]interface{}, timeout time.Duration) ([]byte, error) {
	key := cache.Key(operation, params)
	query := toValues(params)

	policy := f.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.UpstreamRetries.WithLabelValues(operation).Inc()
		f.log.Warn("Retrying upstream call", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err,
		})
	}

	return f.loader.Load(ctx, key, func(ctx context.Context) ([]byte, error) {
		return retry.Do(ctx, policy, operation, func(ctx context.Context) ([]byte, error) {
			body, err := f.http.Get(ctx, operation, endpoint, query, timeout)
			if err != nil {
				metrics.UpstreamRequests.WithLabelValues(operation, string(apperrors.CodeOf(err))).Inc()
				return nil, err
			}
			metrics.UpstreamRequests.WithLabelValues(operation, "ok").Inc()
			return body, nil
		})
	})
}

func (f fetcher) decode(operation string, body []byte) Decoded {
	decoded := DecodeProducts(body)
	if decoded.Path != PathJSON {
		metrics.DecodeFallbacks.WithLabelValues(operation, decoded.Path).Inc()
		f.log.Info("Upstream body needed fallback decode", map[string]interface{}{
			"operation": operation,
			"path":      decoded.Path,
			"bytes":     len(body),
		})
	}
	if decoded.Skipped > 0 {
		f.log.Warn("Skipped undecodable upstream records", map[string]interface{}{
			"operation": operation,
			"skipped":   decoded.Skipped,
		})
	}
	return decoded
}

func toValues(params map[string]interface{}) url.Values {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(url.Values, len(params))
	for _, k := range keys {
		values.Set(k, fmt.Sprint(params[k]))
	}
	return values
}

// localeParams are the fixed catalog and locale parameters every call carries.
func localeParams(cfg config.UpstreamConfig) map[string]interface{} {
	params := map[string]interface{}{
		"appType": cfg.AppType,
		"curr":    cfg.Currency,
		"dest":    cfg.Dest,
	}
	if cfg.Lang != "" {
		params["lang"] = cfg.Lang
	}
	return params
}
