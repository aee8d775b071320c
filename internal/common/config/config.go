// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Buckets  BucketsConfig  `mapstructure:"buckets"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpstreamConfig describes the third-party catalog endpoints and the
// browser-like headers every request carries.
type UpstreamConfig struct {
	SearchURL  string `mapstructure:"search_url"`
	DetailURL  string `mapstructure:"detail_url"`
	SimilarURL string `mapstructure:"similar_url"`

	// ImageHost is a template with a single %02d verb for the bucket number,
	// e.g. "https://basket-%02d.wbbasket.ru".
	ImageHost          string `mapstructure:"image_host"`
	ProductURLTemplate string `mapstructure:"product_url_template"`

	AppType  string `mapstructure:"app_type"`
	Currency string `mapstructure:"currency"`
	Dest     string `mapstructure:"dest"`
	Lang     string `mapstructure:"lang"`
	Sort     string `mapstructure:"sort"`

	UserAgent string `mapstructure:"user_agent"`
	Referer   string `mapstructure:"referer"`
	Origin    string `mapstructure:"origin"`
}

// TimeoutsConfig values are milliseconds.
type TimeoutsConfig struct {
	Search int `mapstructure:"search"`
	Detail int `mapstructure:"detail"`
	Probe  int `mapstructure:"probe"`
	Image  int `mapstructure:"image"`
}

type RetryConfig struct {
	MaxRetries    int     `mapstructure:"max_retries"`
	InitialDelay  int     `mapstructure:"initial_delay"` // milliseconds
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	MaxDelay      int     `mapstructure:"max_delay"` // milliseconds, 0 = uncapped
	Jitter        bool    `mapstructure:"jitter"`
}

type CacheConfig struct {
	Backend   string      `mapstructure:"backend"` // memory | redis
	KeyPrefix string      `mapstructure:"key_prefix"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BucketsConfig struct {
	Count            int `mapstructure:"count"`
	ProbeConcurrency int `mapstructure:"probe_concurrency"`
	// StaticMap holds confirmed productId -> bucket pairs. Keys are strings
	// because viper lowercases and stringifies map keys.
	StaticMap map[string]int `mapstructure:"static_map"`
}

type PricingConfig struct {
	MinorUnitDivisor float64 `mapstructure:"minor_unit_divisor"`
	ImageSlots       int     `mapstructure:"image_slots"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
