// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/census-catalog-builder/internal/app"
	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/config"
	"github.com/JakeFAU/census-catalog-builder/internal/fetcher/retry"
	"github.com/JakeFAU/census-catalog-builder/internal/storage/local"
)

func loadConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestNew_DefaultCollaborators(t *testing.T) {
	t.Parallel()

	a, err := app.New(loadConfig(t), app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.IsType(t, &retry.Fetcher{}, a.Fetcher())
	assert.NotNil(t, a.Limiter())
	assert.NotNil(t, a.Hasher())
	assert.Equal(t, "https://api.census.gov/data.xml", a.Config().Feed.URL)
}

func TestStores_LocalDirectory(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	a, err := app.New(cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	stores, err := a.Stores(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.IsType(t, &local.BlobStore{}, stores[0])
	_, err = os.Stat(cfg.Output.Dir)
	require.NoError(t, err)

	again, err := a.Stores(context.Background())
	require.NoError(t, err)
	assert.Same(t, stores[0], again[0])
}

func TestStores_DryRunKeepsArtifactsInMemory(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Output.DryRun = true
	a, err := app.New(cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	sink, err := a.Sink(context.Background())
	require.NoError(t, err)
	_, err = sink.Write(context.Background(), []catalog.CatalogRow{})
	require.NoError(t, err)

	require.NotNil(t, a.DryRunStore())
	assert.Equal(t, []string{"census_api_catalog.csv", "census_api_catalog.json", "manifest.json"}, a.DryRunStore().Paths())
	_, err = os.Stat(cfg.Output.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStores_GCSMirror(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		uploads []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/catalog-bucket"):
			fmt.Fprintln(w, `{"name": "catalog-bucket"}`)
		case r.Method == http.MethodPost:
			name := r.URL.Query().Get("name")
			mu.Lock()
			uploads = append(uploads, name)
			mu.Unlock()
			fmt.Fprintln(w, `{"name": "`+name+`"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	cfg := loadConfig(t)
	cfg.Storage.GCSBucket = "catalog-bucket"
	cfg.Storage.Prefix = "census"
	a, err := app.New(cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	a.GCSOptions = []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}
	t.Cleanup(a.Close)

	sink, err := a.Sink(context.Background())
	require.NoError(t, err)
	uris, err := sink.Write(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, uris, 6)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"census/census_api_catalog.csv",
		"census/census_api_catalog.json",
		"census/manifest.json",
	}, uploads)
}

func TestStores_GCSUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	cfg := loadConfig(t)
	cfg.Storage.GCSBucket = "missing-bucket"
	a, err := app.New(cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	a.GCSOptions = []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}
	t.Cleanup(a.Close)

	_, err = a.Stores(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open gcs mirror")
}

func TestSink_PublishesRunEvent(t *testing.T) {
	t.Parallel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	opts := []option.ClientOption{option.WithGRPCConn(conn)}

	admin, err := pubsub.NewClient(context.Background(), "census-project", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.TopicAdminClient.CreateTopic(context.Background(), &pubsubpb.Topic{
		Name: "projects/census-project/topics/catalog-runs",
	})
	require.NoError(t, err)

	cfg := loadConfig(t)
	cfg.Notify.PubSubProject = "census-project"
	cfg.Notify.PubSubTopic = "catalog-runs"
	a, err := app.New(cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	a.PubSubOptions = opts
	t.Cleanup(a.Close)

	sink, err := a.Sink(context.Background())
	require.NoError(t, err)
	_, err = sink.Write(context.Background(), nil)
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].Data), `"run_id"`)
}
