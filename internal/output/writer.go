package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
)

// Default artifact names.
const (
	DefaultCSVName      = "census_api_catalog.csv"
	DefaultJSONName     = "census_api_catalog.json"
	DefaultManifestName = "manifest.json"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeJSON = "application/json"
)

// Config names the artifacts and records where the rows came from.
type Config struct {
	CSVName      string
	JSONName     string
	ManifestName string
	FeedURL      string
}

// Manifest describes one run's artifacts.
type Manifest struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	FeedURL     string         `json:"feed_url"`
	Counts      Counts         `json:"counts"`
	Files       []ManifestFile `json:"files"`
}

// Counts tallies the written rows.
type Counts struct {
	Rows            int `json:"rows"`
	Vintage         int `json:"vintage"`
	Timeseries      int `json:"timeseries"`
	VariablesFailed int `json:"variables_fetch_failed"`
}

// ManifestFile is one catalog artifact with its digest.
type ManifestFile struct {
	Name   string `json:"name"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Publisher announces a finished run.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Event is published once every store holds the artifacts.
type Event struct {
	Manifest Manifest `json:"manifest"`
	URIs     []string `json:"uris"`
}

// Writer is the catalog.Sink that persists the artifacts to every store.
type Writer struct {
	stores    []catalog.BlobStore
	hasher    catalog.Hasher
	clock     catalog.Clock
	ids       catalog.IDGenerator
	cfg       Config
	publisher Publisher
	logger    *zap.Logger
}

// NewWriter constructs a Writer. At least one store is required.
func NewWriter(
	stores []catalog.BlobStore,
	hasher catalog.Hasher,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Writer, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one blob store is required")
	}
	if hasher == nil || clock == nil || ids == nil {
		return nil, fmt.Errorf("hasher, clock, and id generator are required")
	}
	if cfg.CSVName == "" {
		cfg.CSVName = DefaultCSVName
	}
	if cfg.JSONName == "" {
		cfg.JSONName = DefaultJSONName
	}
	if cfg.ManifestName == "" {
		cfg.ManifestName = DefaultManifestName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		stores: stores,
		hasher: hasher,
		clock:  clock,
		ids:    ids,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// WithPublisher announces each completed write on p.
func (w *Writer) WithPublisher(p Publisher) *Writer {
	w.publisher = p
	return w
}

type artifact struct {
	name        string
	contentType string
	data        []byte
}

// Write encodes rows once and stores the CSV, JSON, and manifest in every
// store. It returns the URIs of everything written.
func (w *Writer) Write(ctx context.Context, rows []catalog.CatalogRow) ([]string, error) {
	csvData, err := EncodeCSV(rows)
	if err != nil {
		return nil, err
	}
	jsonData, err := EncodeJSON(rows)
	if err != nil {
		return nil, err
	}
	artifacts := []artifact{
		{name: w.cfg.CSVName, contentType: contentTypeCSV, data: csvData},
		{name: w.cfg.JSONName, contentType: contentTypeJSON, data: jsonData},
	}

	manifest, err := w.manifest(rows, artifacts)
	if err != nil {
		return nil, err
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	artifacts = append(artifacts, artifact{name: w.cfg.ManifestName, contentType: contentTypeJSON, data: manifestData})

	uris := make([]string, 0, len(artifacts)*len(w.stores))
	for _, store := range w.stores {
		for _, a := range artifacts {
			uri, err := store.PutObject(ctx, a.name, a.contentType, bytes.NewReader(a.data))
			if err != nil {
				return uris, fmt.Errorf("put %s: %w", a.name, err)
			}
			w.logger.Info("artifact written", zap.String("uri", uri), zap.Int("bytes", len(a.data)))
			uris = append(uris, uri)
		}
	}
	w.announce(ctx, manifest, uris)
	return uris, nil
}

// announce publishes the run event. The artifacts are already durable, so a
// failed publish is logged and not returned.
func (w *Writer) announce(ctx context.Context, manifest Manifest, uris []string) {
	if w.publisher == nil {
		return
	}
	id, err := w.publisher.Publish(ctx, Event{Manifest: manifest, URIs: uris})
	if err != nil {
		w.logger.Warn("failed to publish run event", zap.String("run_id", manifest.RunID), zap.Error(err))
		return
	}
	w.logger.Info("run event published", zap.String("run_id", manifest.RunID), zap.String("message_id", id))
}

func (w *Writer) manifest(rows []catalog.CatalogRow, artifacts []artifact) (Manifest, error) {
	runID, err := w.ids.NewID()
	if err != nil {
		return Manifest{}, fmt.Errorf("generate run id: %w", err)
	}
	m := Manifest{
		RunID:       runID,
		GeneratedAt: w.clock.Now(),
		FeedURL:     w.cfg.FeedURL,
		Counts:      countRows(rows),
		Files:       make([]ManifestFile, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		sum, err := w.hasher.Hash(a.data)
		if err != nil {
			return Manifest{}, fmt.Errorf("hash %s: %w", a.name, err)
		}
		m.Files = append(m.Files, ManifestFile{Name: a.name, Bytes: len(a.data), SHA256: sum})
	}
	return m, nil
}

func countRows(rows []catalog.CatalogRow) Counts {
	c := Counts{Rows: len(rows)}
	for _, row := range rows {
		switch row.VintageOrTimeseries {
		case catalog.KindTimeseries:
			c.Timeseries++
		default:
			c.Vintage++
		}
		if row.VariablesStatus == catalog.VariablesFetchFailed {
			c.VariablesFailed++
		}
	}
	return c
}
