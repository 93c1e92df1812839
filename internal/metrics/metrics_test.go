package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://api.census.gov/data.xml", "api.census.gov"},
		{"mixed case", "https://API.Census.gov/data/2023/acs/acs5", "api.census.gov"},
		{"no scheme", "api.census.gov/data", "api.census.gov"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchTotal == nil || fetchRetriesTotal == nil || datasetsTotal == nil ||
		fetchDurationSeconds == nil || rateLimitDelaySeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(fetchTotal.WithLabelValues("metrics.test", OutcomeSuccess))
	ObserveFetch("https://metrics.test/data.xml", OutcomeSuccess, 50*time.Millisecond)
	if got := testutil.ToFloat64(fetchTotal.WithLabelValues("metrics.test", OutcomeSuccess)); got != before+1 {
		t.Errorf("fetch counter = %f, want %f", got, before+1)
	}

	beforeRetry := testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("metrics.test"))
	ObserveRetry("https://metrics.test/data.xml")
	if got := testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("metrics.test")); got != beforeRetry+1 {
		t.Errorf("retry counter = %f, want %f", got, beforeRetry+1)
	}

	beforeDataset := testutil.ToFloat64(datasetsTotal.WithLabelValues("timeseries", "fetch_failed"))
	ObserveDataset("timeseries", "fetch_failed")
	if got := testutil.ToFloat64(datasetsTotal.WithLabelValues("timeseries", "fetch_failed")); got != beforeDataset+1 {
		t.Errorf("dataset counter = %f, want %f", got, beforeDataset+1)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"https://api.census.gov", "http://example.com/data", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if got := SanitizeSite(orig); got == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", orig)
		}
	})
}
