// Package config loads and validates catalog builder configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/output"
)

// EnvPrefix namespaces environment overrides, e.g. CENSUS_CATALOG_CRAWLER_LIMIT.
const EnvPrefix = "CENSUS_CATALOG"

// DefaultUserAgent identifies the builder to the upstream service.
const DefaultUserAgent = "CensusCatalogBuilder/1.0 (+https://api.census.gov/data.html)"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Feed    FeedConfig    `mapstructure:"feed"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// FeedConfig locates the dataset feed and the documentation constants.
type FeedConfig struct {
	URL        string `mapstructure:"url"`
	DataPrefix string `mapstructure:"data_prefix"`
	APIDocsURL string `mapstructure:"api_docs_url"`
}

// HTTPConfig configures the fetcher and its retries.
type HTTPConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	MaxAttempts    int               `mapstructure:"max_attempts"`
	BackoffMs      int               `mapstructure:"backoff_ms"`
	MaxBodyBytes   int               `mapstructure:"max_body_bytes"`
	RespectRobots  bool              `mapstructure:"respect_robots"`
	Headers        map[string]string `mapstructure:"headers"`
}

// CrawlerConfig governs dataset selection and the crawl loop.
type CrawlerConfig struct {
	Concurrency    int     `mapstructure:"concurrency"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
	Limit          int     `mapstructure:"limit"`
	PathSegment    string  `mapstructure:"path_segment"`
	TimeseriesOnly bool    `mapstructure:"timeseries_only"`
	ProgressEvery  int     `mapstructure:"progress_every"`
}

// OutputConfig names the output directory and artifacts.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	CSVName      string `mapstructure:"csv_name"`
	JSONName     string `mapstructure:"json_name"`
	ManifestName string `mapstructure:"manifest_name"`
	Summary      bool   `mapstructure:"summary"`
	DryRun       bool   `mapstructure:"dry_run"`
}

// StorageConfig enables the optional bucket mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig enables the health and metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// NotifyConfig enables the Pub/Sub run announcement when Topic is set.
type NotifyConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"out":             "output.dir",
	"limit":           "crawler.limit",
	"path-segment":    "crawler.path_segment",
	"timeseries-only": "crawler.timeseries_only",
	"concurrency":     "crawler.concurrency",
	"dry-run":         "output.dry_run",
	"metrics-addr":    "metrics.addr",
	"gcs-bucket":      "storage.gcs_bucket",
	"feed-url":        "feed.url",
	"pubsub-topic":    "notify.pubsub_topic",
	"log-level":       "logging.level",
	"dev":             "logging.development",
}

// Load builds a Config from defaults, an optional file, the environment, and
// any bound flags present in flags (which may be nil).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.url", "https://api.census.gov/data.xml")
	v.SetDefault("feed.data_prefix", catalog.DefaultDataPrefix)
	v.SetDefault("feed.api_docs_url", catalog.DefaultAPIDocsURL)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_ms", 1000)
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.rate_per_host", 2.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.limit", 0)
	v.SetDefault("crawler.path_segment", "")
	v.SetDefault("crawler.timeseries_only", false)
	v.SetDefault("crawler.progress_every", 25)
	v.SetDefault("output.dir", "census_catalog_out")
	v.SetDefault("output.csv_name", output.DefaultCSVName)
	v.SetDefault("output.json_name", output.DefaultJSONName)
	v.SetDefault("output.manifest_name", output.DefaultManifestName)
	v.SetDefault("output.summary", true)
	v.SetDefault("output.dry_run", false)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("notify.pubsub_project", "")
	v.SetDefault("notify.pubsub_topic", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Feed.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed.url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffMs < 0 {
		return fmt.Errorf("http.backoff_ms must be >= 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RatePerHost < 0 {
		return fmt.Errorf("crawler.rate_per_host must be >= 0")
	}
	if c.Crawler.Limit < 0 {
		return fmt.Errorf("crawler.limit must be >= 0")
	}
	if c.Crawler.TimeseriesOnly && c.Crawler.PathSegment != "" && c.Crawler.PathSegment != catalog.TimeseriesSegment {
		return fmt.Errorf("crawler.timeseries_only conflicts with crawler.path_segment %q", c.Crawler.PathSegment)
	}
	if !c.Output.DryRun && strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Notify.PubSubTopic != "" && c.Notify.PubSubProject == "" && !strings.HasPrefix(c.Notify.PubSubTopic, "projects/") {
		return fmt.Errorf("notify.pubsub_project must be set with notify.pubsub_topic")
	}
	for key, name := range map[string]string{
		"output.csv_name":      c.Output.CSVName,
		"output.json_name":     c.Output.JSONName,
		"output.manifest_name": c.Output.ManifestName,
	} {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%s must be a plain file name", key)
		}
	}
	return nil
}

// PathSegment returns the dataset path filter, folding in TimeseriesOnly.
func (c Config) PathSegment() string {
	if c.Crawler.TimeseriesOnly {
		return catalog.TimeseriesSegment
	}
	return c.Crawler.PathSegment
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff returns the base retry delay.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.HTTP.BackoffMs) * time.Millisecond
}
