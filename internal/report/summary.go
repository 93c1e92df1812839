// Package report renders the end-of-run summary table.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
)

// maxFailedListed caps the failed-dataset listing.
const maxFailedListed = 20

// Summary is everything the report prints about one build.
type Summary struct {
	Result   catalog.Result
	Duration time.Duration
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Render writes the counts table and, when any variables page failed, a table
// of the affected datasets.
func Render(w io.Writer, s Summary) {
	var vintage, timeseries, withParams int
	var failed []catalog.CatalogRow
	for _, row := range s.Result.Rows {
		if row.VintageOrTimeseries == catalog.KindTimeseries {
			timeseries++
		} else {
			vintage++
		}
		if row.RequiredParameters != "" {
			withParams++
		}
		if row.VariablesStatus == catalog.VariablesFetchFailed {
			failed = append(failed, row)
		}
	}

	sel := s.Result.Selection
	t := newTable(w)
	t.SetTitle("Census API catalog")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Datasets in feed", sel.Discovered},
		{"Without base URL", sel.Unresolved},
		{"Filtered out", sel.Filtered},
		{"Over limit", sel.Limited},
		{"Catalog rows", len(s.Result.Rows)},
		{"Vintage", vintage},
		{"Timeseries", timeseries},
		{"With required parameters", withParams},
		{"Variables fetch failed", len(failed)},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Duration", s.Duration.Round(time.Millisecond).String()})
	for _, uri := range s.Result.Artifacts {
		t.AppendRow(table.Row{"Artifact", uri})
	}
	t.Render()

	if len(failed) == 0 {
		return
	}
	f := newTable(w)
	f.SetTitle("Variables pages that failed to load")
	f.AppendHeader(table.Row{"#", "Title", "Variables URL"})
	for i, row := range failed {
		if i == maxFailedListed {
			f.AppendFooter(table.Row{"", fmt.Sprintf("... and %d more", len(failed)-maxFailedListed), ""})
			break
		}
		f.AppendRow(table.Row{i + 1, row.Title, row.VariablesURL})
	}
	f.Render()
}
