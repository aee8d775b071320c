// cmd/catalog-search/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/catalog/search"
	"catalog-search/internal/common/cache"
	"catalog-search/internal/common/config"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/observability"
)

type options struct {
	configPath string
	query      string
	limit      int
	minPrice   string
	maxPrice   string
	gender     string
	similar    int64
	imagesDir  string
	images     int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default: configs/config.yaml)")
	flag.StringVar(&opts.query, "query", "", "search text; when empty, queries are read from stdin, one per line")
	flag.IntVar(&opts.limit, "limit", 10, "maximum number of products (1-100)")
	flag.StringVar(&opts.minPrice, "min-price", "", "lower bound on the list price, major units")
	flag.StringVar(&opts.maxPrice, "max-price", "", "upper bound on the sale price, major units")
	flag.StringVar(&opts.gender, "gender", "", "male or female")
	flag.Int64Var(&opts.similar, "similar", 0, "list products similar to this product id instead of searching")
	flag.StringVar(&opts.imagesDir, "images-dir", "", "download product photos into this directory")
	flag.IntVar(&opts.images, "images", 1, "photos per product to download with -images-dir")
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	store, err := newCache(ctx, cfg, log)
	if err != nil {
		zapLog.Error("cache init failed", zap.Error(err))
		return 1
	}

	svc := search.New(cfg, search.Dependencies{
		Cache:         store,
		Observability: obs,
		Logger:        log,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			zapLog.Error("close failed", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Port, zapLog)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r := &runner{svc: svc, opts: opts, out: json.NewEncoder(os.Stdout), log: zapLog}
	r.out.SetIndent("", "  ")

	if opts.similar > 0 {
		return r.similar(ctx)
	}
	if opts.query != "" {
		return r.search(ctx, opts.query)
	}
	return r.interactive(ctx)
}

type runner struct {
	svc  *search.Service
	opts options
	out  *json.Encoder
	log  *zap.Logger
}

func (r *runner) search(ctx context.Context, query string) int {
	minPrice, err := parsePrice(r.opts.minPrice)
	if err != nil {
		r.log.Error("invalid -min-price", zap.Error(err))
		return 2
	}
	maxPrice, err := parsePrice(r.opts.maxPrice)
	if err != nil {
		r.log.Error("invalid -max-price", zap.Error(err))
		return 2
	}
	var gender *string
	if r.opts.gender != "" {
		gender = &r.opts.gender
	}

	products, err := r.svc.SearchProducts(ctx, query, r.opts.limit, minPrice, maxPrice, gender)
	if err != nil {
		r.log.Error("search failed", zap.String("query", query), zap.Error(err))
		return 1
	}
	return r.emit(ctx, products)
}

func (r *runner) similar(ctx context.Context) int {
	products, err := r.svc.SimilarProducts(ctx, r.opts.similar, r.opts.limit)
	if err != nil {
		r.log.Error("similar products failed", zap.Int64("productId", r.opts.similar), zap.Error(err))
		return 1
	}
	return r.emit(ctx, products)
}

// interactive answers one search per stdin line until EOF or a signal.
// The response cache is shared across lines.
func (r *runner) interactive(ctx context.Context) int {
	scanner := bufio.NewScanner(os.Stdin)
	code := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if rc := r.search(ctx, line); rc != 0 {
			code = rc
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Error("reading stdin failed", zap.Error(err))
		return 1
	}
	return code
}

func (r *runner) emit(ctx context.Context, products []models.Product) int {
	if r.opts.imagesDir != "" {
		r.saveImages(ctx, products)
	}
	if err := r.out.Encode(products); err != nil {
		r.log.Error("write output failed", zap.Error(err))
		return 1
	}
	return 0
}

func (r *runner) saveImages(ctx context.Context, products []models.Product) {
	if err := os.MkdirAll(r.opts.imagesDir, 0o755); err != nil {
		r.log.Error("create images dir failed", zap.Error(err))
		return
	}
	for _, p := range products {
		for _, img := range r.svc.DownloadImages(ctx, p, r.opts.images) {
			name := filepath.Join(r.opts.imagesDir, fmt.Sprintf("%d_%d.webp", p.ID, img.Index))
			if err := os.WriteFile(name, img.Data, 0o644); err != nil {
				r.log.Warn("write image failed", zap.String("file", name), zap.Error(err))
			}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newCache(ctx context.Context, cfg *config.Config, log logger.Logger) (cache.Cache, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryCache(), nil
	}
	return cache.NewRedisCache(ctx, cache.RedisOptions{
		Address:  cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.KeyPrefix,
	}, log)
}

func startMetricsServer(port int, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func parsePrice(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
