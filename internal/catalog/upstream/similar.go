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

const opSimilar = "similar"

// SimilarClient queries the recommendations endpoint for products similar
// to a given one.
type SimilarClient struct {
	fetcher
	cfg     config.UpstreamConfig
	timeout time.Duration
}

func NewSimilarClient(http Getter, loader *cache.Loader, cfg config.UpstreamConfig, policy retry.Policy, timeout time.Duration, log logger.Logger) *SimilarClient {
	return &SimilarClient{
		fetcher: newFetcher(http, loader, policy, log.Component("similar_client")),
		cfg:     cfg,
		timeout: timeout,
	}
}

func (c *SimilarClient) Similar(ctx context.Context, productID int64, limit int) ([]models.RawSearchRecord, error) {
	params := localeParams(c.cfg)
	params["nmId"] = productID

	body, err := c.fetch(ctx, opSimilar, c.cfg.SimilarURL, params, c.timeout)
	if err != nil {
		return nil, err
	}

	var out []models.RawSearchRecord
	for _, rec := range c.decode(opSimilar, body).Products {
		if rec.ID == productID {
			continue
		}
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
