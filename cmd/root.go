// Package cmd defines and implements the CLI commands for the census-catalog executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-catalog-builder/internal/app"
	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/config"
	"github.com/JakeFAU/census-catalog-builder/internal/hash/sha256"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/memory"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can inject
// a fake.
type App interface {
	Close()
	GetLogger() *zap.Logger
	Config() config.Config
	Fetcher() catalog.Fetcher
	Limiter() catalog.Limiter
	Sink(ctx context.Context) (catalog.Sink, error)
	Hasher() *sha256.Hasher
	DryRunStore() *memory.BlobStore
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg config.Config) (App, error) {
	return app.New(cfg, app.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "census-catalog",
		Short: "Builds a catalog of the Census Data API's datasets.",
		Long: `census-catalog reads the Census Data API's DCAT feed, derives each dataset's
documentation URLs, scrapes every variables page for its required query
parameters, and writes the result as CSV and JSON with a checksum manifest.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("read --config: %w", err)
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			zap.ReplaceGlobals(appInstance.GetLogger())

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json, or toml)")
	flags.String("log-level", "", "minimum log level (debug, info, warn, error)")
	flags.Bool("dev", false, "human-readable development logging")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newVerifyCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
