package upstream

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/retry"
)

const opDetail = "detail"

// DetailFetcher batch-fetches enrichment fields for a set of products in a
// single upstream call.
type DetailFetcher struct {
	fetcher
	cfg     config.UpstreamConfig
	timeout time.Duration
}

func NewDetailFetcher(http Getter, loader *cache.Loader, cfg config.UpstreamConfig, policy retry.Policy, timeout time.Duration, log logger.Logger) *DetailFetcher {
	return &DetailFetcher{
		fetcher: newFetcher(http, loader, policy, log.Component("detail_client")),
		cfg:     cfg,
		timeout: timeout,
	}
}

// GetDetails returns the detail overlay per id. Ids the upstream does not
// return are absent from the map. Empty input makes no request.
func (d *DetailFetcher) GetDetails(ctx context.Context, ids []int64) (map[int64]models.DetailRecord, error) {
	unique := normalizeIDs(ids)
	if len(unique) == 0 {
		return map[int64]models.DetailRecord{}, nil
	}

	params := localeParams(d.cfg)
	params["nm"] = joinIDs(unique)

	body, err := d.fetch(ctx, opDetail, d.cfg.DetailURL, params, d.timeout)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]models.DetailRecord, len(unique))
	for _, rec := range d.decode(opDetail, body).Products {
		out[rec.ID] = rec.Detail()
	}
	return out, nil
}

// normalizeIDs drops duplicates and non-positive ids and sorts the rest so
// the same set always produces the same cache key.
func normalizeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}
