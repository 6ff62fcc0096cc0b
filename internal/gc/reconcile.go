package gc

import (
	"fmt"
	"sort"
)

// Row is one reconciled sample. Concentrations only holds compounds that were
// measured for the sample; a catalog compound absent here has no measurement.
type Row struct {
	SampleID       int                `json:"sample_id"`
	Concentrations map[string]float64 `json:"concentrations"`
	Sources        []string           `json:"sources"`
}

// Source returns the last report that wrote to the row.
func (r Row) Source() string {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[len(r.Sources)-1]
}

// Reconciliation is the fold of a sequence of parse results.
type Reconciliation struct {
	Rows       []Row          `json:"rows"`
	Catalog    []string       `json:"catalog"`
	Duplicates []*ReportError `json:"-"`
}

// Reconcile folds parse results in the given order. Results that are not
// StatusRecord are ignored. A sample ID seen twice is merged column by column:
// the later report overwrites the compounds it carries and keeps the rest.
// Rows come back sorted by ascending sample ID; the catalog keeps first-seen
// order across the input sequence.
func Reconcile(results []ParseResult) Reconciliation {
	catalog := NewCatalog()
	rows := make(map[int]*Row)
	var dups []*ReportError

	for _, res := range results {
		if !res.OK() {
			continue
		}
		for _, name := range res.Compounds {
			catalog.Add(name)
		}
		row, exists := rows[res.SampleID]
		if !exists {
			row = &Row{SampleID: res.SampleID, Concentrations: make(map[string]float64, len(res.Compounds))}
			rows[res.SampleID] = row
		} else {
			dups = append(dups, &ReportError{
				Source: res.Source,
				Kind:   KindDuplicateSampleID,
				Field:  SampleIDMarker,
				Raw:    fmt.Sprint(res.SampleID),
				Err:    fmt.Errorf("also reported by %s", row.Source()),
			})
		}
		for i, name := range res.Compounds {
			row.Concentrations[name] = res.Concentrations[i]
		}
		row.Sources = append(row.Sources, res.Source)
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleID < out[j].SampleID })

	return Reconciliation{Rows: out, Catalog: catalog.Names(), Duplicates: dups}
}

// Lookup returns the row for a sample ID.
func (r Reconciliation) Lookup(sampleID int) (Row, bool) {
	i := sort.Search(len(r.Rows), func(i int) bool { return r.Rows[i].SampleID >= sampleID })
	if i < len(r.Rows) && r.Rows[i].SampleID == sampleID {
		return r.Rows[i], true
	}
	return Row{}, false
}
