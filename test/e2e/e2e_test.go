// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-search/internal/catalog/search"
	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	"catalog-search/internal/common/logger"
)

// These tests hit the live catalog. Run with CATALOG_E2E=1; set
// REDIS_ADDRESS to exercise the redis cache backend as well.

var zapLog *zap.Logger

func TestMain(m *testing.M) {
	zapLog, _ = zap.NewDevelopment()
	code := m.Run()
	_ = zapLog.Sync()
	os.Exit(code)
}

func newLiveService(t *testing.T) *search.Service {
	t.Helper()
	if testing.Short() || os.Getenv("CATALOG_E2E") == "" {
		t.Skip("Skipping live catalog tests; set CATALOG_E2E=1")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	log := logger.NewZapAdapter(zapLog)
	var store cache.Cache = cache.NewMemoryCache()
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		rc, err := cache.NewRedisCache(context.Background(), cache.RedisOptions{
			Address:  addr,
			Password: cfg.Cache.Redis.Password,
			Prefix:   cfg.Cache.KeyPrefix + "-e2e",
		}, log)
		require.NoError(t, err, "❌ Redis connection failed")
		store = rc
		t.Logf("✅ Redis cache namespace %s", rc.Namespace())
	}

	svc := search.New(cfg, search.Dependencies{Cache: store, Logger: log})
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func TestLive_MaxPriceBoundsSalePrice(t *testing.T) {
	svc := newLiveService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	maxPrice := 5000.0
	products, err := svc.SearchProducts(ctx, "пиджак серый", 3, nil, &maxPrice, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(products), 3)

	for _, p := range products {
		assert.LessOrEqual(t, p.SalePrice, maxPrice, "product %d", p.ID)
		assert.LessOrEqual(t, p.SalePrice, p.Price)
		assert.Len(t, p.ImageURLs, 4)
		t.Logf("✅ %d %q price=%.2f sale=%.2f discount=%d%%", p.ID, p.Name, p.Price, p.SalePrice, p.DiscountPercent)
	}
}

func TestLive_ContradictoryBounds(t *testing.T) {
	svc := newLiveService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	minPrice, maxPrice := 30000.0, 10000.0
	products, err := svc.SearchProducts(ctx, "пиджак", 10, &minPrice, &maxPrice, nil)
	require.NoError(t, err)

	allAboveMin, allBelowMax := true, true
	for _, p := range products {
		allAboveMin = allAboveMin && p.Price >= minPrice
		allBelowMax = allBelowMax && p.SalePrice <= maxPrice
	}
	t.Logf("products=%d all_above_min=%v all_below_max=%v", len(products), allAboveMin, allBelowMax)
}

func TestLive_RepeatedSearchIsCached(t *testing.T) {
	svc := newLiveService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	first, err := svc.SearchProducts(ctx, "платье", 5, nil, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	second, err := svc.SearchProducts(ctx, "платье", 5, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	t.Logf("✅ cached search took %s", time.Since(start))
}
