package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-search/internal/common/config"
	apperrors "catalog-search/internal/common/errors"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/retry"
)

type item struct {
	ID        interface{} `json:"id"`
	Name      string      `json:"name,omitempty"`
	Brand     string      `json:"brand,omitempty"`
	PriceU    int64       `json:"priceU"`
	SalePrice int64       `json:"salePriceU"`
	Pics      interface{} `json:"pics,omitempty"`
}

var defaultCatalog = []item{
	{ID: 184019230, Name: "Пиджак серый", Brand: "Zarina", PriceU: 899000, SalePrice: 449900, Pics: 5},
	{ID: 184019231, Name: "Пиджак", PriceU: 450000, SalePrice: 0, Pics: []int{1, 2}},
	{ID: 184019232, Name: "Пиджак шерстяной", PriceU: 700000, SalePrice: 650000},
	{ID: 184019233, Name: "Пиджак премиум", PriceU: 4000000, SalePrice: 300000},
	{ID: 184019234, Name: "Пиджак летний", PriceU: 120000, SalePrice: 100000},
}

// fakeCatalog applies the upstream's filter asymmetry: price_low against the
// list price and price_high against the sale price.
type fakeCatalog struct {
	*httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	queries []string
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	f := &fakeCatalog{hits: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCatalog) hit(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCatalog) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	q := r.URL.Query()
	switch r.URL.Path {
	case "/search":
		f.mu.Lock()
		f.queries = append(f.queries, q.Get("query"))
		f.mu.Unlock()
		f.search(w, q.Get("query"), q.Get("price_low"), q.Get("price_high"))
	case "/detail":
		if strings.Contains(q.Get("nm"), "999") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var out []map[string]interface{}
		for _, id := range strings.Split(q.Get("nm"), ";") {
			if id == "184019230" {
				out = append(out, map[string]interface{}{
					"id":     184019230,
					"colors": []map[string]string{{"name": "серый"}},
					"sizes":  []map[string]interface{}{{"name": "48", "stocks": []map[string]int{{"qty": 0}}}},
				})
			}
		}
		writeJSON(w, out)
	case "/similar":
		writeJSON(w, defaultCatalog[:3])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCatalog) search(w http.ResponseWriter, query, low, high string) {
	switch {
	case strings.HasPrefix(query, "down"):
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	case strings.HasPrefix(query, "nodetail"):
		writeJSON(w, []item{{ID: 999, PriceU: 100}})
		return
	case strings.HasPrefix(query, "broken"):
		writeJSON(w, []interface{}{
			item{ID: 184019240, PriceU: -5},
			"not a record",
			item{ID: 184019234, PriceU: 120000, SalePrice: 100000},
		})
		return
	case strings.HasPrefix(query, "text"):
		_, _ = w.Write([]byte("not json"))
		return
	}

	var out []item
	for _, it := range defaultCatalog {
		if v, err := strconv.ParseInt(low, 10, 64); err == nil && it.PriceU < v {
			continue
		}
		if v, err := strconv.ParseInt(high, 10, 64); err == nil && it.SalePrice > v {
			continue
		}
		out = append(out, it)
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, products interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{"products": products},
	})
}

func testConfig(base string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			SearchURL:          base + "/search",
			DetailURL:          base + "/detail",
			SimilarURL:         base + "/similar",
			ImageHost:          base + "/basket-%02d",
			ProductURLTemplate: "https://www.wildberries.ru/catalog/%d/detail.aspx",
			AppType:            "1",
			Currency:           "rub",
			Dest:               "-1257786",
			UserAgent:          "test-agent",
		},
		Timeouts: config.TimeoutsConfig{Search: 2000, Detail: 2000, Probe: 500, Image: 500},
		Retry:    config.RetryConfig{MaxRetries: 1, InitialDelay: 1, BackoffFactor: 2},
		Buckets:  config.BucketsConfig{Count: 20, ProbeConcurrency: 1},
		Pricing:  config.PricingConfig{MinorUnitDivisor: 100, ImageSlots: 4},
	}
}

func newService(t *testing.T) (*Service, *fakeCatalog) {
	f := newFakeCatalog(t)
	svc := New(testConfig(f.URL), Dependencies{Logger: logger.NewTestLogger(t)})
	t.Cleanup(func() { _ = svc.Close() })
	return svc, f
}

func ptr[T any](v T) *T { return &v }

func TestSearchProducts_MaxPriceBoundsSalePrice(t *testing.T) {
	svc, f := newService(t)

	products, err := svc.SearchProducts(context.Background(), "пиджак серый", 3, nil, ptr(5000.0), nil)
	require.NoError(t, err)
	require.Len(t, products, 3)

	for _, p := range products {
		assert.LessOrEqual(t, p.SalePrice, 5000.0, "product %d", p.ID)
		assert.LessOrEqual(t, p.SalePrice, p.Price)
		assert.Len(t, p.ImageURLs, 4)
	}

	// list price may exceed the bound; only the sale price is constrained
	first := products[0]
	assert.Equal(t, int64(184019230), first.ID)
	assert.Equal(t, 8990.0, first.Price)
	assert.Equal(t, 4499.0, first.SalePrice)
	assert.Equal(t, 50, first.DiscountPercent)
	assert.Equal(t, []string{"серый"}, first.Colors)
	assert.Equal(t, []string{"48"}, first.Sizes)
	assert.False(t, first.Available)
	assert.Equal(t, f.URL+"/basket-15/vol1840/part184019/184019230/images/c516x688/1.webp", first.ImageURLs[0])
	assert.Equal(t, "https://www.wildberries.ru/catalog/184019230/detail.aspx", first.ProductURL)

	assert.Equal(t, 4500.0, products[1].SalePrice)
	assert.Equal(t, 0, products[1].DiscountPercent)
}

func TestSearchProducts_MinPriceBoundsListPrice(t *testing.T) {
	svc, _ := newService(t)

	products, err := svc.SearchProducts(context.Background(), "пиджак", 10, ptr(5000.0), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.GreaterOrEqual(t, p.Price, 5000.0)
	}
}

func TestSearchProducts_ContradictoryBoundsDoNotFail(t *testing.T) {
	svc, _ := newService(t)

	minPrice, maxPrice := 30000.0, 10000.0
	products, err := svc.SearchProducts(context.Background(), "пиджак", 10, &minPrice, &maxPrice, nil)
	require.NoError(t, err)

	allAboveMin, allBelowMax := true, true
	for _, p := range products {
		allAboveMin = allAboveMin && p.Price >= minPrice
		allBelowMax = allBelowMax && p.SalePrice <= maxPrice
	}
	t.Logf("products=%d all_above_min=%v all_below_max=%v", len(products), allAboveMin, allBelowMax)
}

func TestSearchProducts_CachesRepeatedSearches(t *testing.T) {
	svc, f := newService(t)

	_, err := svc.SearchProducts(context.Background(), "пиджак", 3, nil, ptr(5000.0), nil)
	require.NoError(t, err)
	_, err = svc.SearchProducts(context.Background(), "  пиджак ", 3, nil, ptr(5000.0), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.hit("/search"))
	assert.Equal(t, 1, f.hit("/detail"))
}

func TestSearchProducts_GenderKeyword(t *testing.T) {
	svc, f := newService(t)

	products, err := svc.SearchProducts(context.Background(), "пиджак", 2, nil, nil, ptr(GenderMale))
	require.NoError(t, err)
	assert.Equal(t, "пиджак мужской", f.lastQuery())
	for _, p := range products {
		assert.Equal(t, GenderMale, p.Gender)
	}

	_, err = svc.SearchProducts(context.Background(), "платье женский", 2, nil, nil, ptr(GenderFemale))
	require.NoError(t, err)
	assert.Equal(t, "платье женский", f.lastQuery())
}

func TestSearchProducts_SkipsBadRecords(t *testing.T) {
	svc, _ := newService(t)

	products, err := svc.SearchProducts(context.Background(), "broken", 10, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(184019234), products[0].ID)
}

func TestSearchProducts_UnparseableBodyIsEmpty(t *testing.T) {
	svc, f := newService(t)

	products, err := svc.SearchProducts(context.Background(), "text", 10, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, f.hit("/detail"))
}

func TestSearchProducts_UpstreamFailures(t *testing.T) {
	t.Run("search exhausted retries", func(t *testing.T) {
		svc, f := newService(t)

		_, err := svc.SearchProducts(context.Background(), "down", 3, nil, nil, nil)
		require.Error(t, err)

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeUpstreamBadStatus, stdErr.Code)
		assert.Equal(t, 2, f.hit("/search"))
	})

	t.Run("detail failure", func(t *testing.T) {
		svc, f := newService(t)

		_, err := svc.SearchProducts(context.Background(), "nodetail", 3, nil, nil, nil)
		require.Error(t, err)
		assert.Equal(t, 2, f.hit("/detail"))
	})
}

func TestSearchProducts_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		limit    int
		minPrice *float64
		gender   *string
	}{
		{name: "empty query", query: "   ", limit: 3},
		{name: "zero limit", query: "пиджак", limit: 0},
		{name: "limit too large", query: "пиджак", limit: 101},
		{name: "negative price", query: "пиджак", limit: 3, minPrice: ptr(-1.0)},
		{name: "unknown gender", query: "пиджак", limit: 3, gender: ptr("robot")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newService(t)

			_, err := svc.SearchProducts(context.Background(), tt.query, tt.limit, tt.minPrice, nil, tt.gender)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidSearchRequest, apperrors.CodeOf(err))
			assert.Equal(t, 0, f.hit("/search"))
		})
	}
}

func TestSimilarProducts(t *testing.T) {
	svc, _ := newService(t)

	products, err := svc.SimilarProducts(context.Background(), 184019230, 5)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(184019231), products[0].ID)

	_, err = svc.SimilarProducts(context.Background(), 0, 5)
	assert.Equal(t, apperrors.ErrCodeInvalidSearchRequest, apperrors.CodeOf(err))
}

func TestClose_Idempotent(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SearchProducts(context.Background(), "пиджак", 1, nil, nil, nil)
	require.NoError(t, err)

	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestStaticMapFromConfig(t *testing.T) {
	got := staticMap(map[string]int{"184019230": 7, "abc": 3}, logger.NewNoOpLogger())
	assert.Equal(t, map[int64]int{184019230: 7}, got)
}

func TestFetchBudgetCoversEveryAttempt(t *testing.T) {
	cfg := &config.Config{Timeouts: config.TimeoutsConfig{Search: 2000, Detail: 3000}}
	policy := retry.Policy{MaxRetries: 2, InitialDelay: 100 * time.Millisecond, BackoffFactor: 2}

	// three attempts at 3s, two backoffs capped at 400ms, one second of slack
	assert.Equal(t, 10800*time.Millisecond, fetchBudget(cfg, policy))
}
