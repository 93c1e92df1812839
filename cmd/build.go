package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-catalog-builder/internal/api"
	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/report"
)

// newBuildCmd creates the 'build' subcommand.
func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch the feed, crawl variables pages, and write the catalog",
		Long: `Builds the catalog in one pass. Only a feed that cannot be fetched fails the
run; datasets whose variables page cannot be loaded are written with empty
required parameters and listed in the summary.`,
		Args: cobra.NoArgs,
		RunE: runBuildCommand,
	}

	flags := cmd.Flags()
	flags.String("out", "census_catalog_out", "output directory")
	flags.Int("limit", 0, "process at most N datasets after filtering (0 means all)")
	flags.Bool("timeseries-only", false, "only datasets whose URL path contains /timeseries/")
	flags.String("path-segment", "", "only datasets whose URL path contains this segment")
	flags.Int("concurrency", 1, "variables pages fetched in parallel")
	flags.Bool("dry-run", false, "crawl and summarize without writing files")
	flags.String("metrics-addr", "", "serve /healthz and /metrics on this address during the run")
	flags.String("gcs-bucket", "", "also upload the artifacts to this GCS bucket")
	flags.String("feed-url", "", "override the DCAT feed URL")
	flags.String("pubsub-topic", "", "announce the finished run on this Pub/Sub topic")
	cmd.MarkFlagsMutuallyExclusive("timeseries-only", "path-segment")
	return cmd
}

func runBuildCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := appInstance.Config()
	logger := appInstance.GetLogger()

	if cfg.Metrics.Addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := api.NewServer(logger.Named("api")).Serve(srvCtx, cfg.Metrics.Addr, nil); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	sink, err := appInstance.Sink(ctx)
	if err != nil {
		return err
	}
	crawler := catalog.NewCrawler(
		appInstance.Fetcher(),
		appInstance.Limiter(),
		catalog.CrawlerConfig{
			Concurrency:   cfg.Crawler.Concurrency,
			ProgressEvery: cfg.Crawler.ProgressEvery,
		},
		logger.Named("crawler"),
	)
	builder := catalog.NewBuilder(
		appInstance.Fetcher(),
		catalog.NewFeedParser(cfg.Feed.DataPrefix),
		crawler,
		sink,
		catalog.BuilderConfig{
			FeedURL:     cfg.Feed.URL,
			APIDocsURL:  cfg.Feed.APIDocsURL,
			PathSegment: cfg.PathSegment(),
			Limit:       cfg.Crawler.Limit,
		},
		logger.Named("builder"),
	)

	start := time.Now()
	result, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	duration := time.Since(start)
	logger.Info("catalog built",
		zap.Int("rows", len(result.Rows)),
		zap.Int("artifacts", len(result.Artifacts)),
		zap.Duration("duration", duration),
	)

	out := cmd.OutOrStdout()
	if cfg.Output.Summary {
		report.Render(out, report.Summary{Result: result, Duration: duration})
	}
	if store := appInstance.DryRunStore(); store != nil {
		fmt.Fprintf(out, "Dry run kept %d artifacts in memory:\n", len(store.Paths()))
		for _, path := range store.Paths() {
			obj, _ := store.Get(path)
			fmt.Fprintf(out, "  %s (%d bytes)\n", path, len(obj.Data))
		}
	}
	return nil
}
