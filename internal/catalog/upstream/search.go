package upstream

import (
	"context"
	"time"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/retry"
)

const opSearch = "search"

// SearchClient issues catalog search queries.
type SearchClient struct {
	fetcher
	cfg     config.UpstreamConfig
	timeout time.Duration
}

func NewSearchClient(http Getter, loader *cache.Loader, cfg config.UpstreamConfig, policy retry.Policy, timeout time.Duration, log logger.Logger) *SearchClient {
	return &SearchClient{
		fetcher: newFetcher(http, loader, policy, log.Component("search_client")),
		cfg:     cfg,
		timeout: timeout,
	}
}

// Search returns at most q.Limit raw records. The two price bounds address
// different upstream fields: price_low filters the list price and price_high
// filters the sale price. Both are forwarded exactly as given, even when they
// contradict each other, and results are never filtered locally.
func (c *SearchClient) Search(ctx context.Context, q models.SearchQuery) ([]models.RawSearchRecord, error) {
	body, err := c.fetch(ctx, opSearch, c.cfg.SearchURL, c.params(q), c.timeout)
	if err != nil {
		return nil, err
	}

	records := c.decode(opSearch, body).Products
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	c.log.Debug("Search completed", map[string]interface{}{
		"query":   q.Text,
		"results": len(records),
	})
	return records, nil
}

func (c *SearchClient) params(q models.SearchQuery) map[string]interface{} {
	params := localeParams(c.cfg)
	params["query"] = q.Text
	params["limit"] = q.Limit
	params["skip"] = q.Skip
	params["resultset"] = "catalog"
	if c.cfg.Sort != "" {
		params["sort"] = c.cfg.Sort
	}
	if q.PriceLowCents != nil {
		params["price_low"] = *q.PriceLowCents
	}
	if q.PriceHighCents != nil {
		params["price_high"] = *q.PriceHighCents
	}
	return params
}
