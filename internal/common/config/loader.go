// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml when
// present), applies env overrides and defaults, then validates.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Cache.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Cache.Redis.Address = val
		}
	}
	if cfg.Cache.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Cache.Redis.Password = val
		}
	}
	if val := os.Getenv("CATALOG_USER_AGENT"); val != "" {
		cfg.Upstream.UserAgent = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "catalog-search"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	u := &cfg.Upstream
	if u.SearchURL == "" {
		u.SearchURL = "https://search.wb.ru/exactmatch/ru/common/v4/search"
	}
	if u.DetailURL == "" {
		u.DetailURL = "https://card.wb.ru/cards/v1/detail"
	}
	if u.SimilarURL == "" {
		u.SimilarURL = "https://recom.wb.ru/recom/ru/common/v5/search"
	}
	if u.ImageHost == "" {
		u.ImageHost = "https://basket-%02d.wbbasket.ru"
	}
	if u.ProductURLTemplate == "" {
		u.ProductURLTemplate = "https://www.wildberries.ru/catalog/%d/detail.aspx"
	}
	if u.AppType == "" {
		u.AppType = "1"
	}
	if u.Currency == "" {
		u.Currency = "rub"
	}
	if u.Dest == "" {
		u.Dest = "-1257786"
	}
	if u.Lang == "" {
		u.Lang = "ru"
	}
	if u.Sort == "" {
		u.Sort = "popular"
	}
	if u.UserAgent == "" {
		u.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if u.Referer == "" {
		u.Referer = "https://www.wildberries.ru/"
	}
	if u.Origin == "" {
		u.Origin = "https://www.wildberries.ru"
	}

	if cfg.Timeouts.Search == 0 {
		cfg.Timeouts.Search = 30000
	}
	if cfg.Timeouts.Detail == 0 {
		cfg.Timeouts.Detail = 30000
	}
	if cfg.Timeouts.Probe == 0 {
		cfg.Timeouts.Probe = 1000
	}
	if cfg.Timeouts.Image == 0 {
		cfg.Timeouts.Image = 5000
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 1000
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = 2
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "catalog"
	}

	if cfg.Buckets.Count == 0 {
		cfg.Buckets.Count = 20
	}
	if cfg.Buckets.ProbeConcurrency == 0 {
		cfg.Buckets.ProbeConcurrency = 4
	}

	if cfg.Pricing.MinorUnitDivisor == 0 {
		cfg.Pricing.MinorUnitDivisor = 100
	}
	if cfg.Pricing.ImageSlots == 0 {
		cfg.Pricing.ImageSlots = 4
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1")
	}
	if cfg.Buckets.Count < 1 {
		return fmt.Errorf("buckets.count must be positive")
	}
	for id, bucket := range cfg.Buckets.StaticMap {
		if bucket < 1 || bucket > cfg.Buckets.Count {
			return fmt.Errorf("buckets.static_map[%s] = %d is outside 1..%d", id, bucket, cfg.Buckets.Count)
		}
	}
	if !strings.Contains(cfg.Upstream.ImageHost, "%02d") {
		return fmt.Errorf("upstream.image_host must contain a %%02d bucket verb")
	}
	return nil
}
