package catalog

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/census-catalog-builder/internal/metrics"
)

const defaultProgressEvery = 25

// CrawlerConfig controls how datasets are crawled.
type CrawlerConfig struct {
	// Concurrency caps in-flight dataset crawls. Values below 2 crawl sequentially.
	Concurrency int
	// ProgressEvery logs a progress line after this many completed datasets.
	ProgressEvery int
}

// Crawler fetches each dataset's variables page and reduces it to a catalog row.
type Crawler struct {
	fetcher Fetcher
	limiter Limiter
	cfg     CrawlerConfig
	logger  *zap.Logger
}

// NewCrawler constructs a Crawler. The limiter may be nil.
func NewCrawler(fetcher Fetcher, limiter Limiter, cfg CrawlerConfig, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	return &Crawler{
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Crawl builds the catalog row for one dataset. It never fails: a variables
// page that cannot be fetched yields an empty required parameter list.
func (c *Crawler) Crawl(ctx context.Context, desc NormalizedDatasetDescriptor) CatalogRow {
	row := CatalogRow{
		NormalizedDatasetDescriptor: desc,
		VintageOrTimeseries:         Classify(desc.BaseURL),
		VariablesStatus:             VariablesOK,
	}
	body, ok := c.fetchVariables(ctx, desc.VariablesURL)
	if !ok {
		row.VariablesStatus = VariablesFetchFailed
	} else {
		row.RequiredParameters = RequiredParameters(ParseVariables(body))
	}
	metrics.ObserveDataset(string(row.VintageOrTimeseries), string(row.VariablesStatus))
	return row
}

func (c *Crawler) fetchVariables(ctx context.Context, url string) ([]byte, bool) {
	if c.fetcher == nil || url == "" {
		return nil, false
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			c.logger.Warn("rate limiter wait failed", zap.String("url", url), zap.Error(err))
			return nil, false
		}
	}
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Warn("variables page fetch failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("variables page returned non-success status",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, false
	}
	return resp.Body, true
}

// CrawlAll crawls every descriptor and returns rows in input order. One
// dataset's failure never affects another's row.
func (c *Crawler) CrawlAll(ctx context.Context, descs []NormalizedDatasetDescriptor) []CatalogRow {
	rows := make([]CatalogRow, len(descs))
	var done atomic.Int64
	total := len(descs)
	report := func() {
		n := done.Add(1)
		if n%int64(c.cfg.ProgressEvery) == 0 || n == int64(total) {
			c.logger.Info("crawl progress", zap.Int64("done", n), zap.Int("total", total))
		}
	}

	if c.cfg.Concurrency < 2 {
		for i, desc := range descs {
			rows[i] = c.Crawl(ctx, desc)
			report()
		}
		return rows
	}

	// Crawl never returns an error, so the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, desc := range descs {
		g.Go(func() error {
			rows[i] = c.Crawl(ctx, desc)
			report()
			return nil
		})
	}
	_ = g.Wait()
	return rows
}
