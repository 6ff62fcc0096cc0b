// Package export materializes reconciled GC results as tabular artifacts and
// stores them in the configured blob store.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"fermentlab/internal/gc"
)

// Format names an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type stored alongside the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts csv, json and xlsx.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %s", s)
	}
}

// Column headers of the exported tables.
const (
	SampleIDColumn = "Sample ID"
	FileNameColumn = "File name"
	CompoundColumn = "Compound"
)

// TimestampLayout renders time cells in csv output.
const TimestampLayout = "2006-01-02 15:04:05"

// SheetName is the worksheet written into xlsx artifacts.
const SheetName = "Sheet1"

// Dataset is a rectangular table. A nil cell is an empty cell; it is never
// written as zero.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ConcentrationDataset lays out one row per sample: Sample ID, one column per
// catalog compound, then the base name of the file that last wrote the row.
func ConcentrationDataset(name string, rec gc.Reconciliation) Dataset {
	columns := make([]string, 0, len(rec.Catalog)+2)
	columns = append(columns, SampleIDColumn)
	columns = append(columns, rec.Catalog...)
	columns = append(columns, FileNameColumn)

	rows := make([][]any, 0, len(rec.Rows))
	for _, row := range rec.Rows {
		cells := make([]any, 0, len(columns))
		cells = append(cells, row.SampleID)
		for _, name := range rec.Catalog {
			if v, ok := row.Concentrations[name]; ok {
				cells = append(cells, v)
			} else {
				cells = append(cells, nil)
			}
		}
		cells = append(cells, filepath.Base(row.Source()))
		rows = append(rows, cells)
	}
	return Dataset{Name: name, Columns: columns, Rows: rows}
}

// CompoundDataset lists catalog compounds in first-seen order.
func CompoundDataset(name string, catalog []string) Dataset {
	rows := make([][]any, len(catalog))
	for i, c := range catalog {
		rows[i] = []any{c}
	}
	return Dataset{Name: name, Columns: []string{CompoundColumn}, Rows: rows}
}

// Materialize encodes the dataset.
func Materialize(format Format, ds Dataset) ([]byte, error) {
	switch format {
	case FormatCSV:
		return materializeCSV(ds)
	case FormatJSON:
		return materializeJSON(ds)
	case FormatXLSX:
		return materializeXLSX(ds)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func materializeCSV(ds Dataset) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(ds.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i := range ds.Columns {
			record[i] = ""
			if i < len(row) {
				record[i] = formatValue(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// materializeJSON writes one object per row. Empty cells are left out.
func materializeJSON(ds Dataset) ([]byte, error) {
	objects := make([]map[string]any, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		obj := make(map[string]any, len(ds.Columns))
		for i, col := range ds.Columns {
			if i < len(row) && row[i] != nil {
				obj[col] = row[i]
			}
		}
		objects = append(objects, obj)
	}
	payload, err := json.MarshalIndent(struct {
		Name    string           `json:"name"`
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}{ds.Name, ds.Columns, objects}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return payload, nil
}

func materializeXLSX(ds Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	for i, row := range ds.Rows {
		for j, v := range row {
			if v == nil || j >= len(ds.Columns) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write xlsx cell %s: %w", cell, err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(TimestampLayout)
	default:
		return fmt.Sprint(val)
	}
}
