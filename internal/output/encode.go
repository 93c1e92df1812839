// Package output encodes catalog rows into the CSV, JSON, and manifest artifacts
// and writes them through one or more blob stores.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
)

// record fixes the JSON key order to catalog.Columns.
type record struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	BaseURL             string `json:"base_url"`
	VintageOrTimeseries string `json:"vintage_or_timeseries"`
	VariablesURL        string `json:"variables_url"`
	GeographyURL        string `json:"geography_url"`
	ExamplesURL         string `json:"examples_url"`
	GroupsURL           string `json:"groups_url"`
	DocsURL             string `json:"docs_url"`
	APIDocsURL          string `json:"api_docs_url"`
	LandingPage         string `json:"landing_page"`
	RequiredParameters  string `json:"required_parameters"`
}

func newRecord(row catalog.CatalogRow) record {
	return record{
		Title:               row.Title,
		Description:         row.Description,
		BaseURL:             row.BaseURL,
		VintageOrTimeseries: string(row.VintageOrTimeseries),
		VariablesURL:        row.VariablesURL,
		GeographyURL:        row.GeographyURL,
		ExamplesURL:         row.ExamplesURL,
		GroupsURL:           row.GroupsURL,
		DocsURL:             row.DocsURL,
		APIDocsURL:          row.APIDocsURL,
		LandingPage:         row.LandingPage,
		RequiredParameters:  row.RequiredParameters,
	}
}

// EncodeCSV renders rows as CSV with a header line in catalog.Columns order.
func EncodeCSV(rows []catalog.CatalogRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(catalog.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(row.Values()); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders rows as a two-space indented array of objects. An empty
// input yields an empty array.
func EncodeJSON(rows []catalog.CatalogRow) ([]byte, error) {
	records := make([]record, 0, len(rows))
	for _, row := range rows {
		records = append(records, newRecord(row))
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
