// Package search is the entry point the rest of an application uses to query
// the catalog. It hides caching, retries and image bucket discovery behind
// SearchProducts and Close.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"catalog-search/internal/catalog/bucket"
	"catalog-search/internal/catalog/media"
	"catalog-search/internal/catalog/models"
	"catalog-search/internal/catalog/pricing"
	"catalog-search/internal/catalog/upstream"
	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	apperrors "catalog-search/internal/common/errors"
	apphttp "catalog-search/internal/common/http"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/metrics"
	"catalog-search/internal/common/observability"
	"catalog-search/internal/common/retry"
	"catalog-search/internal/common/validation"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"

	maxLimit = 100
)

// genderKeywords are appended to the query text; the upstream has no
// gender parameter.
var genderKeywords = map[string]string{
	GenderMale:   "мужской",
	GenderFemale: "женский",
}

var requestSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"query", "limit"},
	"properties": map[string]interface{}{
		"query":     map[string]interface{}{"type": "string", "minLength": 1},
		"limit":     map[string]interface{}{"type": "integer", "minimum": 1, "maximum": maxLimit},
		"min_price": map[string]interface{}{"type": "number", "minimum": 0},
		"max_price": map[string]interface{}{"type": "number", "minimum": 0},
		"gender":    map[string]interface{}{"type": "string", "enum": []string{GenderMale, GenderFemale}},
	},
}

var requestValidator = validation.MustValidator(requestSchema)

type searchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Gender   *string  `json:"gender,omitempty"`
}

// Dependencies are optional collaborators. Zero values are replaced with
// defaults built from the config. The Service takes ownership of Cache and
// Session and releases both on Close.
type Dependencies struct {
	Cache         cache.Cache
	Session       *apphttp.Session
	Observability *observability.Observability
	Logger        logger.Logger
}

// Service orchestrates search, detail enrichment, bucket resolution and
// price assembly.
type Service struct {
	cfg     *config.Config
	session *apphttp.Session
	cache   cache.Cache
	obs     *observability.Observability
	log     logger.Logger

	search    *upstream.SearchClient
	details   *upstream.DetailFetcher
	similar   *upstream.SimilarClient
	buckets   *bucket.Resolver
	assembler *pricing.Assembler
	media     *media.Downloader

	closeOnce sync.Once
	closeErr  error
}

func New(cfg *config.Config, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"service": "product_search"})

	session := deps.Session
	if session == nil {
		session = apphttp.NewSession(apphttp.Headers{
			UserAgent: cfg.Upstream.UserAgent,
			Referer:   cfg.Upstream.Referer,
			Origin:    cfg.Upstream.Origin,
		})
	}
	store := deps.Cache
	if store == nil {
		store = cache.NewMemoryCache()
	}

	policy := retry.Policy{
		MaxRetries:    cfg.Retry.MaxRetries,
		InitialDelay:  config.GetDuration(cfg.Retry.InitialDelay),
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxDelay:      config.GetDuration(cfg.Retry.MaxDelay),
		Jitter:        cfg.Retry.Jitter,
	}
	loader := cache.NewLoader(store, "response").WithTimeout(fetchBudget(cfg, policy))

	return &Service{
		cfg:     cfg,
		session: session,
		cache:   store,
		obs:     deps.Observability,
		log:     log,

		search:  upstream.NewSearchClient(session, loader, cfg.Upstream, policy, config.GetDuration(cfg.Timeouts.Search), log),
		details: upstream.NewDetailFetcher(session, loader, cfg.Upstream, policy, config.GetDuration(cfg.Timeouts.Detail), log),
		similar: upstream.NewSimilarClient(session, loader, cfg.Upstream, policy, config.GetDuration(cfg.Timeouts.Search), log),
		buckets: bucket.NewResolver(session, bucket.Options{
			ImageHost:        cfg.Upstream.ImageHost,
			Count:            cfg.Buckets.Count,
			ProbeConcurrency: cfg.Buckets.ProbeConcurrency,
			ProbeTimeout:     config.GetDuration(cfg.Timeouts.Probe),
			StaticMap:        staticMap(cfg.Buckets.StaticMap, log),
		}, log),
		assembler: pricing.NewAssembler(pricing.Options{
			ImageHost:          cfg.Upstream.ImageHost,
			ProductURLTemplate: cfg.Upstream.ProductURLTemplate,
			MinorUnitDivisor:   cfg.Pricing.MinorUnitDivisor,
			ImageSlots:         cfg.Pricing.ImageSlots,
		}, log),
		media: media.NewDownloader(session, config.GetDuration(cfg.Timeouts.Image), log),
	}
}

// SearchProducts runs a catalog search. minPrice bounds the list price and
// maxPrice bounds the sale price, both in major units. An error is returned
// only for invalid input or when search or detail enrichment fails after
// retries.
func (s *Service) SearchProducts(ctx context.Context, query string, limit int, minPrice, maxPrice *float64, gender *string) ([]models.Product, error) {
	ctx, span := s.obs.Tracer().Start(ctx, "SearchProducts", trace.WithAttributes(
		attribute.String("query", query),
		attribute.Int("limit", limit),
	))
	defer span.End()

	start := time.Now()
	products, err := s.searchProducts(ctx, query, limit, minPrice, maxPrice, gender)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("products", len(products)))
	metrics.SearchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	s.obs.RecordSearch(ctx, elapsed, len(products), status)

	return products, err
}

func (s *Service) searchProducts(ctx context.Context, query string, limit int, minPrice, maxPrice *float64, gender *string) ([]models.Product, error) {
	req := searchRequest{
		Query:    strings.TrimSpace(query),
		Limit:    limit,
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Gender:   gender,
	}
	if err := validate(req); err != nil {
		s.log.Warn("Rejected search request", map[string]interface{}{"error": err})
		return nil, err
	}

	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		s.log.Warn("Contradictory price bounds, forwarding as given", map[string]interface{}{
			"min_price": *minPrice,
			"max_price": *maxPrice,
		})
	}

	genderValue := ""
	if gender != nil {
		genderValue = *gender
	}

	q := models.SearchQuery{
		Text:           withGender(req.Query, genderValue),
		Limit:          limit,
		PriceLowCents:  s.toMinor(minPrice),
		PriceHighCents: s.toMinor(maxPrice),
		Gender:         gender,
	}

	records, err := s.search.Search(ctx, q)
	if err != nil {
		s.log.Error("Catalog search failed", map[string]interface{}{"query": q.Text, "error": err})
		return nil, err
	}

	products, err := s.assemble(ctx, records, genderValue)
	if err != nil {
		return nil, err
	}

	s.log.Info("Search completed", map[string]interface{}{
		"query":    q.Text,
		"limit":    limit,
		"received": len(records),
		"products": len(products),
	})
	return products, nil
}

// SimilarProducts returns products the catalog recommends alongside productID.
func (s *Service) SimilarProducts(ctx context.Context, productID int64, limit int) ([]models.Product, error) {
	if productID <= 0 {
		return nil, apperrors.NewInvalidSearchRequestError(fmt.Sprintf("product id must be positive, got %d", productID))
	}
	if limit < 1 || limit > maxLimit {
		return nil, apperrors.NewInvalidSearchRequestError(fmt.Sprintf("limit must be between 1 and %d, got %d", maxLimit, limit))
	}

	ctx, span := s.obs.Tracer().Start(ctx, "SimilarProducts", trace.WithAttributes(attribute.Int64("product_id", productID)))
	defer span.End()

	records, err := s.similar.Similar(ctx, productID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.assemble(ctx, records, "")
}

// DownloadImages fetches up to maxImages photos of an assembled product. It never fails.
func (s *Service) DownloadImages(ctx context.Context, p models.Product, maxImages int) []media.Image {
	return s.media.Download(ctx, p, maxImages)
}

// assemble enriches records in their original order. A record that cannot
// be assembled is logged and dropped; only a detail failure fails the batch.
func (s *Service) assemble(ctx context.Context, records []models.RawSearchRecord, gender string) ([]models.Product, error) {
	if len(records) == 0 {
		return []models.Product{}, nil
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	details, err := s.details.GetDetails(ctx, ids)
	if err != nil {
		s.log.Error("Detail enrichment failed", map[string]interface{}{"products": len(ids), "error": err})
		return nil, err
	}
	assignments := s.buckets.ResolveAll(ctx, ids)

	products := make([]models.Product, 0, len(records))
	for _, r := range records {
		var detail *models.DetailRecord
		if d, ok := details[r.ID]; ok {
			detail = &d
		}

		p, err := s.assembler.Assemble(r, detail, assignments[r.ID], gender)
		if err != nil {
			s.log.Warn("Skipping product that failed to assemble", map[string]interface{}{
				"product_id": r.ID,
				"error":      err,
			})
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// Close releases the connection pool and the cache. Safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.session.Close(), s.cache.Close())
		s.log.Info("Product search service closed", nil)
	})
	return s.closeErr
}

func (s *Service) toMinor(major *float64) *int64 {
	if major == nil {
		return nil
	}
	divisor := s.cfg.Pricing.MinorUnitDivisor
	if divisor <= 0 {
		divisor = 100
	}
	v := int64(math.Round(*major * divisor))
	return &v
}

// fetchBudget bounds one shared upstream fetch: every attempt at the slowest
// per-call timeout plus every backoff at its ceiling, with a second of slack.
func fetchBudget(cfg *config.Config, policy retry.Policy) time.Duration {
	perCall := config.GetDuration(cfg.Timeouts.Search)
	if d := config.GetDuration(cfg.Timeouts.Detail); d > perCall {
		perCall = d
	}
	attempts := time.Duration(policy.MaxRetries + 1)
	return perCall*attempts + policy.Bound()*time.Duration(policy.MaxRetries) + time.Second
}

func validate(req searchRequest) error {
	res, err := requestValidator.Validate(req)
	if err != nil {
		return apperrors.NewInvalidSearchRequestError(err.Error())
	}
	if !res.Valid {
		return apperrors.NewInvalidSearchRequestError(res.Summary())
	}
	return nil
}

func withGender(query, gender string) string {
	keyword, ok := genderKeywords[gender]
	if !ok || strings.Contains(strings.ToLower(query), keyword) {
		return query
	}
	return query + " " + keyword
}

func staticMap(raw map[string]int, log logger.Logger) map[int64]int {
	out := make(map[int64]int, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			log.Warn("Ignoring static bucket entry with non-numeric id", map[string]interface{}{"id": k})
			continue
		}
		out[id] = v
	}
	return out
}
