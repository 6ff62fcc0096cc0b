package ferment

import (
	"context"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"fermentlab/internal/export"
	"fermentlab/internal/gc"
)

// OutputDir is the key prefix cleaned artifacts are written under.
const OutputDir = "cleaned_data"

// Options tunes Clean.
type Options struct {
	// FillCultures copies every "Culture types" column onto data rows by
	// their Culture type.
	FillCultures bool
}

// Sample is one row of the cleaned dataset.
type Sample struct {
	ID    int
	Cells map[string]any
}

// Dataset is the cleaned Data sheet keyed by sample ID. Column order follows
// the sheet, then added columns in the order they were first written.
type Dataset struct {
	columns []string
	known   map[string]bool
	samples []*Sample
	byID    map[int]*Sample
}

// MergeReport lists what a merge changed.
type MergeReport struct {
	Updated  []int // sample IDs present in the workbook
	Appended []int // sample IDs only the GC reports knew
	Columns  []string
}

// Clean drops empty Data columns, fills in the sampling-time columns by
// planned time point and computes elapsed hours from planned point 0.
func (w *Workbook) Clean(opts Options) (*Dataset, error) {
	d := &Dataset{known: make(map[string]bool), byID: make(map[int]*Sample)}
	for _, row := range w.data.rows {
		id, err := sampleID(row.key)
		if err != nil {
			return nil, err
		}
		cells := make(map[string]any, len(row.cells))
		for k, v := range row.cells {
			cells[k] = v
		}
		s := &Sample{ID: id, Cells: cells}
		d.samples = append(d.samples, s)
		d.byID[id] = s
	}
	for _, col := range w.data.columns {
		if d.columnHasValue(col) {
			d.addColumn(col)
		}
	}

	if opts.FillCultures {
		if w.cultures == nil {
			return nil, fmt.Errorf("workbook has no %q sheet", CulturesSheet)
		}
		d.mapColumns(w.cultures, CultureTypeColumn)
	}
	d.mapColumns(w.times, PlannedTimeColumn)

	if err := d.computeHours(w); err != nil {
		return nil, err
	}
	return d, nil
}

func sampleID(key string) (int, error) {
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s %q is not a non-negative integer", SampleIDColumn, key)
	}
	return int(f), nil
}

func (d *Dataset) columnHasValue(col string) bool {
	for _, s := range d.samples {
		if s.Cells[col] != nil {
			return true
		}
	}
	return false
}

func (d *Dataset) addColumn(col string) {
	if !d.known[col] {
		d.known[col] = true
		d.columns = append(d.columns, col)
	}
}

// mapColumns copies every column of src onto samples whose keyCol matches a
// src row. Unmatched samples get empty cells, replacing what they had.
func (d *Dataset) mapColumns(src *table, keyCol string) {
	for _, col := range src.columns {
		d.addColumn(col)
	}
	for _, s := range d.samples {
		row, ok := src.lookup(keyString(s.Cells[keyCol]))
		for _, col := range src.columns {
			if ok && row[col] != nil {
				s.Cells[col] = row[col]
			} else {
				delete(s.Cells, col)
			}
		}
	}
}

func (d *Dataset) computeHours(w *Workbook) error {
	ref, ok := w.times.lookup(ReferencePoint)
	if !ok || ref[SamplingTimeColumn] == nil {
		return fmt.Errorf("sheet %q has no %s for planned time point %s", TimesSheet, SamplingTimeColumn, ReferencePoint)
	}
	start, err := w.parseTimestamp(ref[SamplingTimeColumn])
	if err != nil {
		return fmt.Errorf("reference sampling time: %w", err)
	}
	d.addColumn(SamplingTimeColumn)
	d.addColumn(ActualHoursColumn)
	for _, s := range d.samples {
		v := s.Cells[SamplingTimeColumn]
		if v == nil {
			delete(s.Cells, ActualHoursColumn)
			continue
		}
		at, err := w.parseTimestamp(v)
		if err != nil {
			return fmt.Errorf("sample %d: %w", s.ID, err)
		}
		s.Cells[SamplingTimeColumn] = at
		s.Cells[ActualHoursColumn] = at.Sub(start).Hours()
	}
	return nil
}

// Merge writes every reconciled row into the sample with the same ID, one
// compound column at a time. Compounds a row lacks keep their current value.
// Unknown sample IDs are appended.
func (d *Dataset) Merge(rec gc.Reconciliation) MergeReport {
	report := MergeReport{}
	for _, name := range rec.Catalog {
		if !d.known[name] {
			report.Columns = append(report.Columns, name)
		}
		d.addColumn(name)
	}
	for _, row := range rec.Rows {
		s, ok := d.byID[row.SampleID]
		if ok {
			report.Updated = append(report.Updated, row.SampleID)
		} else {
			s = &Sample{ID: row.SampleID, Cells: make(map[string]any, len(row.Concentrations))}
			d.samples = append(d.samples, s)
			d.byID[row.SampleID] = s
			report.Appended = append(report.Appended, row.SampleID)
		}
		for name, v := range row.Concentrations {
			s.Cells[name] = v
		}
	}
	return report
}

// Columns returns the column names after Sample ID.
func (d *Dataset) Columns() []string { return append([]string(nil), d.columns...) }

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Lookup returns a copy of one sample's cells.
func (d *Dataset) Lookup(id int) (map[string]any, bool) {
	s, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(s.Cells))
	for k, v := range s.Cells {
		out[k] = v
	}
	return out, true
}

// Table lays the dataset out for export.
func (d *Dataset) Table(name string) export.Dataset {
	columns := append([]string{SampleIDColumn}, d.columns...)
	rows := make([][]any, len(d.samples))
	for i, s := range d.samples {
		row := make([]any, len(columns))
		row[0] = s.ID
		for j, col := range d.columns {
			row[j+1] = s.Cells[col]
		}
		rows[i] = row
	}
	return export.Dataset{Name: name, Columns: columns, Rows: rows}
}

// OutputBase derives the artifact name stem from a workbook path:
// "run3_raw.xlsx" becomes "run3_".
func OutputBase(workbookPath string) string {
	return strings.ReplaceAll(filepath.Base(workbookPath), "raw.xlsx", "")
}

// Write stores <base>cleaned.csv, <base>cleaned.xlsx and
// <base>compound_list.csv under prefix/OutputDir, replacing earlier outputs.
func (d *Dataset) Write(ctx context.Context, exp *export.Exporter, prefix, base string, catalog []string) ([]export.Artifact, error) {
	opts := export.Options{Prefix: path.Join(prefix, OutputDir), Replace: true}
	arts, err := exp.Export(ctx, d.Table(base+"cleaned"), []export.Format{export.FormatCSV, export.FormatXLSX}, opts)
	if err != nil {
		return arts, err
	}
	more, err := exp.Export(ctx, export.CompoundDataset(base+"compound_list", catalog), []export.Format{export.FormatCSV}, opts)
	return append(arts, more...), err
}
