package catalog

import (
	"net/url"
	"strings"
)

// DefaultAPIDocsURL is the developer landing page shared by every dataset.
const DefaultAPIDocsURL = "https://www.census.gov/data/developers/data-sets.html"

// TimeseriesSegment marks a multi-period dataset in its base URL path.
const TimeseriesSegment = "/timeseries/"

const htmlSuffix = ".html"

// Normalize derives the documentation URLs for a raw descriptor. The boolean is
// false when the descriptor has no base URL guess and must be skipped.
// The derived URLs follow the site's naming convention and are not verified.
func Normalize(raw RawDatasetDescriptor, apiDocsURL string) (NormalizedDatasetDescriptor, bool) {
	base := raw.BaseURLGuess
	if base == "" {
		return NormalizedDatasetDescriptor{}, false
	}
	if apiDocsURL == "" {
		apiDocsURL = DefaultAPIDocsURL
	}
	docs := base
	if !strings.HasSuffix(docs, htmlSuffix) {
		docs += htmlSuffix
	}
	stem := strings.TrimSuffix(docs, htmlSuffix)
	child := func(name string) string {
		return stem + "/" + name + htmlSuffix
	}
	return NormalizedDatasetDescriptor{
		RawDatasetDescriptor: raw,
		BaseURL:              base,
		DocsURL:              docs,
		VariablesURL:         child("variables"),
		GeographyURL:         child("geography"),
		ExamplesURL:          child("examples"),
		GroupsURL:            child("groups"),
		APIDocsURL:           apiDocsURL,
	}, true
}

// MatchesPathSegment reports whether the descriptor's base URL path contains
// segment. An empty segment matches every descriptor.
func MatchesPathSegment(desc NormalizedDatasetDescriptor, segment string) bool {
	if segment == "" {
		return true
	}
	return strings.Contains(urlPath(desc.BaseURL), segment)
}

// Classify returns the dataset kind implied by the base URL path.
func Classify(baseURL string) Kind {
	if strings.Contains(urlPath(baseURL), TimeseriesSegment) {
		return KindTimeseries
	}
	return KindVintage
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
