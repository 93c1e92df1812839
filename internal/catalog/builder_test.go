package catalog

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedURL = "https://api.census.gov/data.xml"

type recordingSink struct {
	rows []CatalogRow
	err  error
}

func (s *recordingSink) Write(_ context.Context, rows []CatalogRow) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rows = rows
	return []string{"out/census_api_catalog.csv", "out/census_api_catalog.json"}, nil
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	doc := feed(
		nsDataset("ACS 5-Year", "https://api.census.gov/data/2023/acs/acs5"),
		`<dcat:Dataset><dct:title>Orphan</dct:title></dcat:Dataset>`,
		nsDataset("Housing", "https://api.census.gov/data/timeseries/eits/resconst"),
	)
	fetcher := &fakeFetcher{responses: map[string]FetchResponse{
		feedURL: okPage(string(doc)),
		"https://api.census.gov/data/2023/acs/acs5/variables.html": okPage(exampleVariablesPage),
	}}
	sink := &recordingSink{}
	b := NewBuilder(fetcher, nil, nil, sink, BuilderConfig{FeedURL: feedURL}, nil)

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Selection{Discovered: 3, Unresolved: 1}, res.Selection)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "ACS 5-Year", res.Rows[0].Title)
	assert.Equal(t, "B01001_001E;state", res.Rows[0].RequiredParameters)
	assert.Equal(t, KindTimeseries, res.Rows[1].VintageOrTimeseries)
	assert.Equal(t, VariablesFetchFailed, res.Rows[1].VariablesStatus)
	assert.Equal(t, res.Rows, sink.rows)
	assert.Len(t, res.Artifacts, 2)
}

func TestBuilder_FeedFailureIsFatal(t *testing.T) {
	t.Parallel()

	tests := map[string]*fakeFetcher{
		"transport error": {},
		"bad status": {responses: map[string]FetchResponse{
			feedURL: {StatusCode: http.StatusBadGateway},
		}},
	}
	for name, fetcher := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			sink := &recordingSink{}
			_, err := NewBuilder(fetcher, nil, nil, sink, BuilderConfig{FeedURL: feedURL}, nil).Build(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFeedUnavailable)
			assert.Nil(t, sink.rows)
		})
	}
}

func TestBuilder_SinkFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]FetchResponse{feedURL: okPage(string(feed()))}}
	sinkErr := errors.New("disk full")
	_, err := NewBuilder(fetcher, nil, nil, &recordingSink{err: sinkErr}, BuilderConfig{FeedURL: feedURL}, nil).
		Build(context.Background())
	require.ErrorIs(t, err, sinkErr)
	assert.NotErrorIs(t, err, ErrFeedUnavailable)
}

func TestBuilder_DryRunWithoutSink(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string]FetchResponse{
		feedURL: okPage(string(feed(nsDataset("CBP", "https://api.census.gov/data/2022/cbp")))),
	}}
	res, err := NewBuilder(fetcher, nil, nil, nil, BuilderConfig{FeedURL: feedURL}, nil).Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.Empty(t, res.Artifacts)
}

func TestSelectDatasets(t *testing.T) {
	t.Parallel()

	raws := []RawDatasetDescriptor{
		{Title: "a", BaseURLGuess: "https://api.census.gov/data/timeseries/a"},
		{Title: "b", BaseURLGuess: "https://api.census.gov/data/2023/b"},
		{Title: "c"},
		{Title: "d", BaseURLGuess: "https://api.census.gov/data/timeseries/d"},
		{Title: "e", BaseURLGuess: "https://api.census.gov/data/timeseries/e"},
	}

	all, sel := SelectDatasets(raws, "", "", 0)
	assert.Len(t, all, 4)
	assert.Equal(t, Selection{Discovered: 5, Unresolved: 1}, sel)

	ts, sel := SelectDatasets(raws, "", TimeseriesSegment, 2)
	require.Len(t, ts, 2)
	assert.Equal(t, "a", ts[0].Title)
	assert.Equal(t, "d", ts[1].Title)
	assert.Equal(t, Selection{Discovered: 5, Unresolved: 1, Filtered: 1, Limited: 1}, sel)

	limited, _ := SelectDatasets(raws, "", "", 10)
	assert.Len(t, limited, 4)
}
