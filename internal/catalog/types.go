package catalog

import (
	"context"
	"io"
	"time"
)

// Kind classifies a dataset as a single release or a multi-period series.
type Kind string

// Dataset kinds derived from the base URL path.
const (
	KindVintage    Kind = "vintage"
	KindTimeseries Kind = "timeseries"
)

// VariablesStatus records how the variables page fetch went for a row.
// It is kept in memory only and never written to the catalog files.
type VariablesStatus string

// Variables page outcomes.
const (
	VariablesOK          VariablesStatus = "ok"
	VariablesFetchFailed VariablesStatus = "fetch_failed"
)

// RawDatasetDescriptor is one dataset element of the feed.
type RawDatasetDescriptor struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	LandingPage  string `json:"landing_page"`
	BaseURLGuess string `json:"base_url_guess"`
}

// NormalizedDatasetDescriptor carries the documentation URLs derived from a
// raw descriptor's base URL guess.
type NormalizedDatasetDescriptor struct {
	RawDatasetDescriptor

	BaseURL      string `json:"base_url"`
	DocsURL      string `json:"docs_url"`
	VariablesURL string `json:"variables_url"`
	GeographyURL string `json:"geography_url"`
	ExamplesURL  string `json:"examples_url"`
	GroupsURL    string `json:"groups_url"`
	APIDocsURL   string `json:"api_docs_url"`
}

// VariableRecord is one row of a variables documentation table.
type VariableRecord struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Concept       string `json:"concept"`
	PredicateType string `json:"predicateType"`
	Required      bool   `json:"required"`
}

// CatalogRow is the terminal record written to the output files.
type CatalogRow struct {
	NormalizedDatasetDescriptor

	VintageOrTimeseries Kind            `json:"vintage_or_timeseries"`
	RequiredParameters  string          `json:"required_parameters"`
	VariablesStatus     VariablesStatus `json:"-"`
}

// Columns is the fixed column order of the tabular output.
var Columns = []string{
	"title",
	"description",
	"base_url",
	"vintage_or_timeseries",
	"variables_url",
	"geography_url",
	"examples_url",
	"groups_url",
	"docs_url",
	"api_docs_url",
	"landing_page",
	"required_parameters",
}

// Values returns the row's fields in Columns order.
func (r CatalogRow) Values() []string {
	return []string{
		r.Title,
		r.Description,
		r.BaseURL,
		string(r.VintageOrTimeseries),
		r.VariablesURL,
		r.GeographyURL,
		r.ExamplesURL,
		r.GroupsURL,
		r.DocsURL,
		r.APIDocsURL,
		r.LandingPage,
		r.RequiredParameters,
	}
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs a GET against a URL and returns the payload.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Limiter gates outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes an artifact and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Sink persists the final, ordered catalog rows.
type Sink interface {
	Write(ctx context.Context, rows []CatalogRow) ([]string, error)
}

// Hasher computes digests of written artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
