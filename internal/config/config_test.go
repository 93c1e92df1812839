package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Feed.URL != "https://api.census.gov/data.xml" {
		t.Fatalf("unexpected feed url %q", cfg.Feed.URL)
	}
	if cfg.HTTP.UserAgent != DefaultUserAgent {
		t.Fatalf("unexpected user agent %q", cfg.HTTP.UserAgent)
	}
	if cfg.HTTP.MaxAttempts != 3 || cfg.Backoff() != time.Second || cfg.Timeout() != 30*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.HTTP)
	}
	if cfg.Crawler.Concurrency != 1 || cfg.Crawler.Limit != 0 || cfg.PathSegment() != "" {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Output.Dir != "census_catalog_out" || cfg.Output.CSVName != "census_api_catalog.csv" {
		t.Fatalf("unexpected output defaults: %+v", cfg.Output)
	}
	if !cfg.Output.Summary || cfg.Output.DryRun {
		t.Fatalf("unexpected output toggles: %+v", cfg.Output)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
feed:
  url: https://mirror.example.org/data.xml
http:
  user_agent: test-agent/1.0
  timeout_seconds: 10
  max_attempts: 5
  backoff_ms: 200
  headers:
    From: ops@example.org
crawler:
  concurrency: 4
  rate_per_host: 0.5
  limit: 50
  path_segment: /acs/
output:
  dir: out
  summary: false
storage:
  gcs_bucket: catalog-bucket
  prefix: census
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Feed.URL != "https://mirror.example.org/data.xml" {
		t.Fatalf("expected feed override, got %q", cfg.Feed.URL)
	}
	if cfg.HTTP.MaxAttempts != 5 || cfg.Backoff() != 200*time.Millisecond || cfg.Timeout() != 10*time.Second {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.HTTP.Headers["from"] != "ops@example.org" {
		t.Fatalf("expected headers to load: %+v", cfg.HTTP.Headers)
	}
	if cfg.Crawler.Concurrency != 4 || cfg.Crawler.RatePerHost != 0.5 || cfg.Crawler.Limit != 50 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.PathSegment() != "/acs/" {
		t.Fatalf("expected path segment /acs/, got %q", cfg.PathSegment())
	}
	if cfg.Output.Summary || cfg.Storage.GCSBucket != "catalog-bucket" || !cfg.Logging.Development {
		t.Fatalf("expected output/storage/logging overrides: %+v %+v %+v", cfg.Output, cfg.Storage, cfg.Logging)
	}
	// Untouched keys keep their defaults.
	if cfg.Output.JSONName != "census_api_catalog.json" {
		t.Fatalf("expected default json name, got %q", cfg.Output.JSONName)
	}
}

func TestLoadWithFlags(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	flags.String("out", "census_catalog_out", "")
	flags.Int("limit", 0, "")
	flags.Bool("timeseries-only", false, "")
	flags.Int("concurrency", 1, "")
	flags.String("unrelated", "", "")
	if err := flags.Parse([]string{"--out", "/tmp/catalog", "--limit", "10", "--timeseries-only"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Dir != "/tmp/catalog" || cfg.Crawler.Limit != 10 {
		t.Fatalf("expected flag overrides: %+v", cfg)
	}
	if cfg.PathSegment() != "/timeseries/" {
		t.Fatalf("expected timeseries segment, got %q", cfg.PathSegment())
	}
	if cfg.Crawler.Concurrency != 1 {
		t.Fatalf("expected unchanged flag to keep default, got %d", cfg.Crawler.Concurrency)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CENSUS_CATALOG_CRAWLER_LIMIT", "7")
	t.Setenv("CENSUS_CATALOG_OUTPUT_DIR", "from-env")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Limit != 7 || cfg.Output.Dir != "from-env" {
		t.Fatalf("expected env overrides, got limit=%d dir=%q", cfg.Crawler.Limit, cfg.Output.Dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative feed", mutate: func(c *Config) { c.Feed.URL = "data.xml" }, wantErr: "feed.url"},
		{name: "ftp feed", mutate: func(c *Config) { c.Feed.URL = "ftp://api.census.gov/data.xml" }, wantErr: "feed.url"},
		{name: "empty agent", mutate: func(c *Config) { c.HTTP.UserAgent = " " }, wantErr: "user_agent"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, wantErr: "timeout_seconds"},
		{name: "zero attempts", mutate: func(c *Config) { c.HTTP.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "negative backoff", mutate: func(c *Config) { c.HTTP.BackoffMs = -1 }, wantErr: "backoff_ms"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, wantErr: "concurrency"},
		{name: "negative rate", mutate: func(c *Config) { c.Crawler.RatePerHost = -1 }, wantErr: "rate_per_host"},
		{name: "negative limit", mutate: func(c *Config) { c.Crawler.Limit = -1 }, wantErr: "limit"},
		{
			name: "conflicting filters",
			mutate: func(c *Config) {
				c.Crawler.TimeseriesOnly = true
				c.Crawler.PathSegment = "/acs/"
			},
			wantErr: "conflicts",
		},
		{
			name: "agreeing filters",
			mutate: func(c *Config) {
				c.Crawler.TimeseriesOnly = true
				c.Crawler.PathSegment = "/timeseries/"
			},
		},
		{name: "empty dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantErr: "output.dir"},
		{
			name: "dry run without dir",
			mutate: func(c *Config) {
				c.Output.Dir = ""
				c.Output.DryRun = true
			},
		},
		{name: "topic without project", mutate: func(c *Config) { c.Notify.PubSubTopic = "catalog-runs" }, wantErr: "pubsub_project"},
		{name: "qualified topic", mutate: func(c *Config) { c.Notify.PubSubTopic = "projects/p/topics/catalog-runs" }},
		{name: "nested csv name", mutate: func(c *Config) { c.Output.CSVName = "a/b.csv" }, wantErr: "csv_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.HTTP.Headers = nil
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
