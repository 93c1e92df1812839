package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrFeedUnavailable marks the only fatal failure of a build: the feed could
// not be fetched.
var ErrFeedUnavailable = errors.New("feed unavailable")

// BuilderConfig controls feed location and dataset selection.
type BuilderConfig struct {
	FeedURL     string
	APIDocsURL  string
	PathSegment string
	Limit       int
}

// Selection summarizes how feed entries were narrowed before crawling.
type Selection struct {
	Discovered int
	Unresolved int
	Filtered   int
	Limited    int
}

// Result is the outcome of a build.
type Result struct {
	Selection Selection
	Rows      []CatalogRow
	Artifacts []string
}

// Builder assembles the catalog: feed fetch, parse, normalize, crawl, emit.
type Builder struct {
	fetcher Fetcher
	parser  *FeedParser
	crawler *Crawler
	sink    Sink
	cfg     BuilderConfig
	logger  *zap.Logger
}

// NewBuilder wires the pipeline stages. The sink may be nil for a dry run.
func NewBuilder(
	fetcher Fetcher,
	parser *FeedParser,
	crawler *Crawler,
	sink Sink,
	cfg BuilderConfig,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = NewFeedParser(DefaultDataPrefix)
	}
	if crawler == nil {
		crawler = NewCrawler(fetcher, nil, CrawlerConfig{}, logger)
	}
	return &Builder{
		fetcher: fetcher,
		parser:  parser,
		crawler: crawler,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
	}
}

// Build runs the pipeline once. Only the feed fetch and the sink write can fail.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	b.logger.Info("fetching feed", zap.String("url", b.cfg.FeedURL))
	resp, err := b.fetcher.Fetch(ctx, b.cfg.FeedURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, b.cfg.FeedURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: %s: status %d", ErrFeedUnavailable, b.cfg.FeedURL, resp.StatusCode)
	}

	raws := b.parser.Parse(resp.Body)
	selected, sel := SelectDatasets(raws, b.cfg.APIDocsURL, b.cfg.PathSegment, b.cfg.Limit)
	b.logger.Info("datasets selected",
		zap.Int("discovered", sel.Discovered),
		zap.Int("unresolved", sel.Unresolved),
		zap.Int("filtered", sel.Filtered),
		zap.Int("limited", sel.Limited),
		zap.Int("selected", len(selected)),
	)

	rows := b.crawler.CrawlAll(ctx, selected)
	result := Result{Selection: sel, Rows: rows}
	if b.sink == nil {
		return result, nil
	}
	artifacts, err := b.sink.Write(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("write catalog: %w", err)
	}
	result.Artifacts = artifacts
	return result, nil
}

// SelectDatasets normalizes raw descriptors, drops unresolvable ones, applies
// the optional path segment filter, and then the optional limit.
func SelectDatasets(
	raws []RawDatasetDescriptor,
	apiDocsURL string,
	pathSegment string,
	limit int,
) ([]NormalizedDatasetDescriptor, Selection) {
	sel := Selection{Discovered: len(raws)}
	out := make([]NormalizedDatasetDescriptor, 0, len(raws))
	for _, raw := range raws {
		desc, ok := Normalize(raw, apiDocsURL)
		if !ok {
			sel.Unresolved++
			continue
		}
		if !MatchesPathSegment(desc, pathSegment) {
			sel.Filtered++
			continue
		}
		out = append(out, desc)
	}
	if limit > 0 && len(out) > limit {
		sel.Limited = len(out) - limit
		out = out[:limit]
	}
	return out, sel
}
