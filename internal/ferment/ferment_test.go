package ferment

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fermentlab/internal/blob"
	"fermentlab/internal/export"
	"fermentlab/internal/gc"
)

type sheet struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets ...sheet) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			vals := row
			require.NoError(t, f.SetSheetRow(s.name, cell, &vals))
		}
	}
	return f
}

func standardSheets() []sheet {
	return []sheet{
		{DataSheet, [][]any{
			{"Sample ID", "Planned time point", "Culture type", "Empty", "OD600"},
			{1, 0, "A", "", 0.1},
			{2, 24, "A", "", 0.9},
			{3, 48, "B"},
		}},
		{TimesSheet, [][]any{
			{"Planned time point", "Actual sampling time", "Operator"},
			{0, "2026-07-01 08:00", "kim"},
			{24, "2026-07-02 09:30", "lee"},
		}},
		{CulturesSheet, [][]any{
			{"Culture type", "Medium"},
			{"A", "YPD"},
			{"B", "MRS"},
		}},
	}
}

func readBuilt(t *testing.T, f *excelize.File) *Workbook {
	t.Helper()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	wb, err := ReadWorkbook(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return wb
}

func TestCleanMapsSamplingTimes(t *testing.T) {
	wb := readBuilt(t, buildWorkbook(t, standardSheets()...))
	ds, err := wb.Clean(Options{FillCultures: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Planned time point", "Culture type", "OD600", "Medium",
		"Actual sampling time", "Operator", "Actual time point (h)",
	}, ds.Columns())
	assert.Equal(t, 3, ds.Len())

	s1, ok := ds.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "kim", s1["Operator"])
	assert.Equal(t, "YPD", s1["Medium"])
	assert.InDelta(t, 0.0, s1[ActualHoursColumn], 1e-9)

	s2, _ := ds.Lookup(2)
	assert.InDelta(t, 25.5, s2[ActualHoursColumn], 1e-9)
	assert.InDelta(t, 0.9, s2["OD600"], 1e-9)

	s3, _ := ds.Lookup(3)
	assert.Nil(t, s3[ActualHoursColumn])
	assert.Nil(t, s3["Operator"])
	assert.Equal(t, "MRS", s3["Medium"])
}

func TestCleanWithoutCultures(t *testing.T) {
	wb := readBuilt(t, buildWorkbook(t, standardSheets()...))
	ds, err := wb.Clean(Options{})
	require.NoError(t, err)
	assert.NotContains(t, ds.Columns(), "Medium")
}

func TestCleanReadsExcelSerialDates(t *testing.T) {
	sheets := standardSheets()[:2]
	sheets[1].rows = [][]any{
		{"Planned time point", "Actual sampling time"},
		{0, 45000.25},
		{24, 45001.0},
	}
	ds, err := readBuilt(t, buildWorkbook(t, sheets...)).Clean(Options{})
	require.NoError(t, err)
	s2, _ := ds.Lookup(2)
	assert.InDelta(t, 18.0, s2[ActualHoursColumn], 1e-6)
}

func TestCleanErrors(t *testing.T) {
	t.Run("missing data sheet", func(t *testing.T) {
		f := buildWorkbook(t, standardSheets()[1:]...)
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)
		_, err = ReadWorkbook(bytes.NewReader(buf.Bytes()))
		assert.ErrorContains(t, err, `"Data"`)
	})
	t.Run("no reference time", func(t *testing.T) {
		sheets := standardSheets()
		sheets[1].rows = [][]any{{"Planned time point", "Actual sampling time"}, {24, "2026-07-02 09:30"}}
		_, err := readBuilt(t, buildWorkbook(t, sheets...)).Clean(Options{})
		assert.ErrorContains(t, err, "planned time point 0")
	})
	t.Run("bad sample id", func(t *testing.T) {
		sheets := standardSheets()
		sheets[0].rows = append(sheets[0].rows, []any{"S-4", 0})
		_, err := readBuilt(t, buildWorkbook(t, sheets...)).Clean(Options{})
		assert.ErrorContains(t, err, "S-4")
	})
	t.Run("cultures requested but absent", func(t *testing.T) {
		_, err := readBuilt(t, buildWorkbook(t, standardSheets()[:2]...)).Clean(Options{FillCultures: true})
		assert.Error(t, err)
	})
}

func TestMergeUpsertsByColumn(t *testing.T) {
	ds, err := readBuilt(t, buildWorkbook(t, standardSheets()...)).Clean(Options{})
	require.NoError(t, err)

	rec := gc.Reconcile([]gc.ParseResult{
		{Source: "a.txt", Status: gc.StatusRecord, SampleID: 2, Compounds: []string{"Ethanol"}, Concentrations: []float64{5}},
		{Source: "b.txt", Status: gc.StatusRecord, SampleID: 7, Compounds: []string{"Ethanol", "Acetate"}, Concentrations: []float64{1, 2}},
	})
	report := ds.Merge(rec)
	assert.Equal(t, []int{2}, report.Updated)
	assert.Equal(t, []int{7}, report.Appended)
	assert.Equal(t, []string{"Ethanol", "Acetate"}, report.Columns)

	s2, _ := ds.Lookup(2)
	assert.Equal(t, 5.0, s2["Ethanol"])
	assert.Nil(t, s2["Acetate"])
	assert.Equal(t, "A", s2["Culture type"])

	again := gc.Reconcile([]gc.ParseResult{
		{Source: "c.txt", Status: gc.StatusRecord, SampleID: 2, Compounds: []string{"Acetate"}, Concentrations: []float64{3}},
	})
	report = ds.Merge(again)
	assert.Empty(t, report.Columns)
	s2, _ = ds.Lookup(2)
	assert.Equal(t, 5.0, s2["Ethanol"])
	assert.Equal(t, 3.0, s2["Acetate"])
	assert.Equal(t, 4, ds.Len())
}

func TestWriteStoresCleanedOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run3_raw.xlsx")
	require.NoError(t, buildWorkbook(t, standardSheets()...).SaveAs(path))

	wb, err := LoadWorkbook(path)
	require.NoError(t, err)
	ds, err := wb.Clean(Options{})
	require.NoError(t, err)
	rec := gc.Reconcile([]gc.ParseResult{
		{Source: "a.txt", Status: gc.StatusRecord, SampleID: 1, Compounds: []string{"Ethanol"}, Concentrations: []float64{2.5}},
	})
	ds.Merge(rec)

	base := OutputBase(path)
	assert.Equal(t, "run3_", base)

	store := blob.NewMemory()
	exp := export.NewExporter(store, nil, nil)
	ctx := context.Background()
	arts, err := ds.Write(ctx, exp, "", base, rec.Catalog)
	require.NoError(t, err)
	require.Len(t, arts, 3)
	assert.Equal(t, "cleaned_data/run3_cleaned.csv", arts[0].Key)
	assert.Equal(t, "cleaned_data/run3_cleaned.xlsx", arts[1].Key)
	assert.Equal(t, "cleaned_data/run3_compound_list.csv", arts[2].Key)

	_, rc, err := store.Get(ctx, arts[0].Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Sample ID,Planned time point,Culture type,OD600,Actual sampling time,Operator,Actual time point (h),Ethanol", lines[0])
	assert.Equal(t, "1,0,A,0.1,2026-07-01 08:00:00,kim,0,2.5", lines[1])

	// A second write replaces the earlier outputs.
	_, err = ds.Write(ctx, exp, "", base, rec.Catalog)
	require.NoError(t, err)
}
