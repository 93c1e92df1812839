// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/clock/system"
	"github.com/JakeFAU/census-catalog-builder/internal/config"
	collyfetcher "github.com/JakeFAU/census-catalog-builder/internal/fetcher/colly"
	"github.com/JakeFAU/census-catalog-builder/internal/fetcher/retry"
	"github.com/JakeFAU/census-catalog-builder/internal/hash/sha256"
	"github.com/JakeFAU/census-catalog-builder/internal/id/uuid"
	"github.com/JakeFAU/census-catalog-builder/internal/logging"
	"github.com/JakeFAU/census-catalog-builder/internal/metrics"
	"github.com/JakeFAU/census-catalog-builder/internal/notify/pubsub"
	"github.com/JakeFAU/census-catalog-builder/internal/output"
	"github.com/JakeFAU/census-catalog-builder/internal/policy/ratelimit"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/gcs"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/local"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/memory"
)

// App holds the shared, long-lived services of one command invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	fetcher catalog.Fetcher
	limiter *ratelimit.Limiter
	hasher  *sha256.Hasher

	// GCSOptions and PubSubOptions are passed to the cloud clients; tests
	// point them at fakes.
	GCSOptions    []option.ClientOption
	PubSubOptions []option.ClientOption

	storesOnce sync.Once
	stores     []catalog.BlobStore
	storesErr  error
	gcsStore   *gcs.BlobStore
	dryRun     *memory.BlobStore
	publisher  *pubsub.Publisher
}

// Options allows callers to replace collaborators, mainly in tests.
type Options struct {
	Logger  *zap.Logger
	Fetcher catalog.Fetcher
}

// New builds the logger, the retrying fetcher, and the per-host limiter from
// cfg. Blob stores are opened lazily by Stores.
func New(cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		logger = l
	}
	metrics.Init()

	fetcher := opts.Fetcher
	if fetcher == nil {
		base := collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			Headers:       cfg.HTTP.Headers,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.Timeout(),
			MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		})
		fetcher = retry.New(base, retry.Policy{
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.Backoff(),
		}, logger.Named("fetch"))
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		fetcher: fetcher,
		limiter: ratelimit.New(ratelimit.Config{PerHostRPS: cfg.Crawler.RatePerHost, Burst: cfg.Crawler.Burst}),
		hasher:  sha256.New(),
	}, nil
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Fetcher returns the retrying fetcher shared by the feed and page fetches.
func (a *App) Fetcher() catalog.Fetcher {
	return a.fetcher
}

// Limiter returns the per-host courtesy limiter.
func (a *App) Limiter() catalog.Limiter {
	return a.limiter
}

// Hasher returns the artifact hasher.
func (a *App) Hasher() *sha256.Hasher {
	return a.hasher
}

// Stores opens the blob stores on first use: memory for a dry run, otherwise
// the output directory plus the optional bucket mirror.
func (a *App) Stores(ctx context.Context) ([]catalog.BlobStore, error) {
	a.storesOnce.Do(func() {
		a.stores, a.storesErr = a.openStores(ctx)
	})
	return a.stores, a.storesErr
}

func (a *App) openStores(ctx context.Context) ([]catalog.BlobStore, error) {
	if a.cfg.Output.DryRun {
		a.dryRun = memory.NewBlobStore()
		a.logger.Info("dry run: artifacts are kept in memory")
		return []catalog.BlobStore{a.dryRun}, nil
	}

	dir, err := local.New(local.Config{Dir: a.cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	stores := []catalog.BlobStore{dir}

	if a.cfg.Storage.GCSBucket != "" {
		store, err := gcs.Open(ctx, gcs.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		}, a.logger, a.GCSOptions...)
		if err != nil {
			return nil, fmt.Errorf("open gcs mirror: %w", err)
		}
		a.gcsStore = store
		a.logger.Info("mirroring artifacts to gcs", zap.String("bucket", a.cfg.Storage.GCSBucket))
		stores = append(stores, store)
	}
	return stores, nil
}

// DryRunStore returns the in-memory store of a dry run, or nil.
func (a *App) DryRunStore() *memory.BlobStore {
	return a.dryRun
}

// Sink builds the catalog writer over the opened stores.
func (a *App) Sink(ctx context.Context) (catalog.Sink, error) {
	stores, err := a.Stores(ctx)
	if err != nil {
		return nil, err
	}
	w, err := output.NewWriter(stores, a.hasher, system.New(), uuid.New(), output.Config{
		CSVName:      a.cfg.Output.CSVName,
		JSONName:     a.cfg.Output.JSONName,
		ManifestName: a.cfg.Output.ManifestName,
		FeedURL:      a.cfg.Feed.URL,
	}, a.logger.Named("output"))
	if err != nil {
		return nil, fmt.Errorf("init catalog writer: %w", err)
	}
	if a.cfg.Notify.PubSubTopic == "" || a.cfg.Output.DryRun {
		return w, nil
	}
	if a.publisher == nil {
		pub, err := pubsub.Open(ctx, pubsub.Config{
			ProjectID: a.cfg.Notify.PubSubProject,
			Topic:     a.cfg.Notify.PubSubTopic,
		}, a.logger, a.PubSubOptions...)
		if err != nil {
			return nil, fmt.Errorf("open run notifications: %w", err)
		}
		a.publisher = pub
	}
	return w.WithPublisher(a.publisher), nil
}

// Close releases the cloud clients and flushes the logger.
func (a *App) Close() {
	var errs []error
	if a.gcsStore != nil {
		errs = append(errs, a.gcsStore.Close())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
