package catalog

import (
	"bytes"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Header synonyms recognized in a variables table. Lookups try each key in order.
var (
	nameColumn          = []string{"name"}
	labelColumn         = []string{"label"}
	conceptColumn       = []string{"concept"}
	predicateTypeColumn = []string{"predicate type", "predicatetype"}
	requiredColumn      = []string{"required"}
)

var requiredValues = map[string]struct{}{
	"true":     {},
	"yes":      {},
	"required": {},
}

// ParseVariables extracts one record per named row of the first table in a
// variables documentation page. Column order does not matter; only header text
// drives extraction. Missing structure yields an empty result.
func ParseVariables(page []byte) []VariableRecord {
	out := []VariableRecord{}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return out
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return out
	}

	columns := make(map[string]int)
	table.Find("th").Each(func(i int, th *goquery.Selection) {
		columns[strings.ToLower(strings.TrimSpace(th.Text()))] = i
	})

	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := tr.Find("td")
		cell := func(keys []string) string {
			for _, key := range keys {
				idx, ok := columns[key]
				if !ok || idx >= cells.Length() {
					continue
				}
				if v := strings.TrimSpace(cells.Eq(idx).Text()); v != "" {
					return v
				}
			}
			return ""
		}
		name := cell(nameColumn)
		if name == "" {
			return
		}
		_, required := requiredValues[strings.ToLower(cell(requiredColumn))]
		out = append(out, VariableRecord{
			Name:          name,
			Label:         cell(labelColumn),
			Concept:       cell(conceptColumn),
			PredicateType: cell(predicateTypeColumn),
			Required:      required,
		})
	})
	return out
}

// RequiredParameters reduces records to the sorted, deduplicated names of the
// required ones, joined with ";". No required records yields "".
func RequiredParameters(records []VariableRecord) string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if !rec.Required {
			continue
		}
		if _, ok := seen[rec.Name]; ok {
			continue
		}
		seen[rec.Name] = struct{}{}
		names = append(names, rec.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ";")
}
