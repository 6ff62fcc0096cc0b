// Package ferment cleans fermentation workbooks and fills in GC concentrations
// by sample ID.
package ferment

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Sheets and columns of a raw fermentation workbook.
const (
	DataSheet     = "Data"
	TimesSheet    = "Sampling times"
	CulturesSheet = "Culture types"

	SampleIDColumn     = "Sample ID"
	PlannedTimeColumn  = "Planned time point"
	CultureTypeColumn  = "Culture type"
	SamplingTimeColumn = "Actual sampling time"
	ActualHoursColumn  = "Actual time point (h)"
)

// ReferencePoint is the planned time point elapsed hours are measured from.
const ReferencePoint = "0"

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
}

// table is a sheet indexed by one of its columns.
type table struct {
	index   string
	columns []string // excludes index
	rows    []tableRow
	byKey   map[string]int
}

type tableRow struct {
	key   string
	cells map[string]any
}

func (t *table) lookup(key string) (map[string]any, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.byKey[key]
	if !ok {
		return nil, false
	}
	return t.rows[i].cells, true
}

// Workbook is the parsed content of a raw fermentation workbook.
type Workbook struct {
	data     *table
	times    *table
	cultures *table
	date1904 bool
}

// LoadWorkbook opens an xlsx file.
func LoadWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readFile(f)
}

// ReadWorkbook parses an xlsx stream.
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readFile(f)
}

func readFile(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	var err error
	if wb.data, err = readTable(f, DataSheet, SampleIDColumn, true); err != nil {
		return nil, err
	}
	if wb.times, err = readTable(f, TimesSheet, PlannedTimeColumn, true); err != nil {
		return nil, err
	}
	if wb.cultures, err = readTable(f, CulturesSheet, CultureTypeColumn, false); err != nil {
		return nil, err
	}
	return wb, nil
}

// readTable loads a sheet using its header row. Cells come back raw so date
// cells keep their serial value. A missing optional sheet yields nil.
func readTable(f *excelize.File, sheet, index string, required bool) (*table, error) {
	if i, err := f.GetSheetIndex(sheet); err != nil || i < 0 {
		if required {
			return nil, fmt.Errorf("workbook has no %q sheet", sheet)
		}
		return nil, nil
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make([]string, len(rows[0]))
	indexCol := -1
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		header[i] = name
		if name == index && indexCol < 0 {
			indexCol = i
		}
	}
	if indexCol < 0 {
		return nil, fmt.Errorf("sheet %q has no %q column", sheet, index)
	}

	t := &table{index: index, byKey: make(map[string]int)}
	for i, name := range header {
		if i != indexCol {
			t.columns = append(t.columns, name)
		}
	}
	for n, raw := range rows[1:] {
		if blankRow(raw) {
			continue
		}
		key := normalizeKey(cellAt(raw, indexCol))
		if key == "" {
			return nil, fmt.Errorf("sheet %q row %d: empty %s", sheet, n+2, index)
		}
		if _, dup := t.byKey[key]; dup {
			return nil, fmt.Errorf("sheet %q row %d: duplicate %s %s", sheet, n+2, index, key)
		}
		cells := make(map[string]any, len(header))
		for i, name := range header {
			if i == indexCol {
				continue
			}
			if v := parseCell(cellAt(raw, i)); v != nil {
				cells[name] = v
			}
		}
		t.byKey[key] = len(t.rows)
		t.rows = append(t.rows, tableRow{key: key, cells: cells})
	}
	return t, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseCell turns a raw cell into nil, float64 or string.
func parseCell(raw string) any {
	if raw == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return raw
}

// normalizeKey makes "0", "0.0" and 0 equal.
func normalizeKey(raw string) string {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return raw
}

func keyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return normalizeKey(val)
	default:
		return fmt.Sprint(val)
	}
}

// parseTimestamp accepts Excel serial dates and common text layouts.
func (w *Workbook) parseTimestamp(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case float64:
		t, err := excelize.ExcelDateToTime(val, w.date1904)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid excel date %v: %w", val, err)
		}
		return t, nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", val)
	default:
		return time.Time{}, fmt.Errorf("unrecognized timestamp %v", v)
	}
}
