package main

import (
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"fermentlab/internal/gc"
	"fermentlab/internal/persistence"
)

var borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// renderSamples prints one line per sample with concentrations to three
// significant digits. withFiles adds the file that last wrote each row.
func renderSamples(rec gc.Reconciliation, withFiles bool) string {
	headers := append([]string{"Sample ID"}, rec.Catalog...)
	if withFiles {
		headers = append(headers, "File name")
	}
	t := newTable(headers...)
	for _, row := range rec.Rows {
		cells := make([]string, 0, len(headers))
		cells = append(cells, strconv.Itoa(row.SampleID))
		for _, name := range rec.Catalog {
			if v, ok := row.Concentrations[name]; ok {
				cells = append(cells, strconv.FormatFloat(v, 'g', 3, 64))
			} else {
				cells = append(cells, "")
			}
		}
		if withFiles {
			cells = append(cells, filepath.Base(row.Source()))
		}
		t.Row(cells...)
	}
	return t.String()
}

func renderRuns(runs []persistence.Run) string {
	t := newTable("ID", "Experiment", "Created", "Files", "Accepted", "Rejected", "Samples")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.Experiment,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(len(r.Files)),
			strconv.Itoa(r.Accepted),
			strconv.Itoa(r.Rejected()),
			strconv.Itoa(len(r.Rows)),
		)
	}
	return t.String()
}
