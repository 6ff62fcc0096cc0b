package gc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(source string, id int, pairs ...any) ParseResult {
	res := ParseResult{Source: source, Status: StatusRecord, SampleID: id}
	for i := 0; i < len(pairs); i += 2 {
		res.Compounds = append(res.Compounds, pairs[i].(string))
		res.Concentrations = append(res.Concentrations, pairs[i+1].(float64))
	}
	return res
}

func TestReconcileSortsBySampleID(t *testing.T) {
	rec := Reconcile([]ParseResult{
		record("a.txt", 5, "Ethanol", 1.0),
		record("b.txt", 2, "Ethanol", 2.0),
		record("c.txt", 9, "Ethanol", 3.0),
	})
	ids := make([]int, len(rec.Rows))
	for i, r := range rec.Rows {
		ids[i] = r.SampleID
	}
	assert.Equal(t, []int{2, 5, 9}, ids)
	assert.Empty(t, rec.Duplicates)
}

func TestReconcileUpsertsDuplicateSampleColumns(t *testing.T) {
	rec := Reconcile([]ParseResult{
		record("first.txt", 3, "Ethanol", 1.0, "Butyrate", 0.5),
		record("second.txt", 3, "Acetate", 2.0, "Butyrate", 0.7),
	})
	require.Len(t, rec.Rows, 1)
	row := rec.Rows[0]
	want := map[string]float64{"Ethanol": 1.0, "Acetate": 2.0, "Butyrate": 0.7}
	if diff := cmp.Diff(want, row.Concentrations); diff != "" {
		t.Fatalf("concentrations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"first.txt", "second.txt"}, row.Sources)
	assert.Equal(t, "second.txt", row.Source())

	require.Len(t, rec.Duplicates, 1)
	dup := rec.Duplicates[0]
	assert.Equal(t, KindDuplicateSampleID, dup.Kind)
	assert.Equal(t, "second.txt", dup.Source)
	assert.Equal(t, "3", dup.Raw)
	assert.ErrorIs(t, dup, ErrDuplicateSampleID)
	assert.Contains(t, dup.Error(), "first.txt")
}

func TestReconcileCatalogFirstSeenOrder(t *testing.T) {
	rec := Reconcile([]ParseResult{
		record("a.txt", 4, "Lactate", 1.0, "Ethanol", 1.0),
		record("b.txt", 1, "Ethanol", 1.0, "Acetate", 1.0),
		record("c.txt", 2, "Butyrate", 1.0, "Lactate", 1.0),
	})
	assert.Equal(t, []string{"Lactate", "Ethanol", "Acetate", "Butyrate"}, rec.Catalog)
}

func TestReconcileSkipsResultsWithoutRecord(t *testing.T) {
	rec := Reconcile([]ParseResult{
		{Source: "none.txt", Status: StatusNoRecord, Reason: ReasonNoSampleID, SampleID: -1},
		{Source: "bad.txt", Status: StatusRejected, SampleID: 4, Compounds: []string{"Ghost"}, Concentrations: []float64{1}},
		record("ok.txt", 4, "Ethanol", 1.5),
	})
	require.Len(t, rec.Rows, 1)
	assert.Equal(t, []string{"Ethanol"}, rec.Catalog)
	assert.Empty(t, rec.Duplicates)
}

func TestReconcileRowOrderIndependentOfInputOrder(t *testing.T) {
	a := record("a.txt", 7, "Ethanol", 1.0)
	b := record("b.txt", 1, "Acetate", 2.0)
	c := record("c.txt", 4, "Ethanol", 3.0)

	forward := Reconcile([]ParseResult{a, b, c})
	backward := Reconcile([]ParseResult{c, b, a})
	if diff := cmp.Diff(forward.Rows, backward.Rows); diff != "" {
		t.Fatalf("row order depends on input order (-forward +backward):\n%s", diff)
	}
	assert.Equal(t, []string{"Ethanol", "Acetate"}, forward.Catalog)
	assert.Equal(t, []string{"Ethanol", "Acetate"}, backward.Catalog)
}

func TestReconcileMissingCompoundIsAbsentNotZero(t *testing.T) {
	rec := Reconcile([]ParseResult{
		record("a.txt", 1, "Ethanol", 1.0),
		record("b.txt", 2, "Acetate", 2.0),
	})
	row, ok := rec.Lookup(1)
	require.True(t, ok)
	_, has := row.Concentrations["Acetate"]
	assert.False(t, has)

	_, ok = rec.Lookup(3)
	assert.False(t, ok)
}

func TestReconcileDoesNotAliasInputs(t *testing.T) {
	in := []ParseResult{record("a.txt", 1, "Ethanol", 1.0)}
	rec := Reconcile(in)
	rec.Rows[0].Concentrations["Ethanol"] = 99
	again := Reconcile(in)
	assert.InDelta(t, 1.0, again.Rows[0].Concentrations["Ethanol"], 1e-9)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("b", "a", "b")
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Add("c"))
	assert.False(t, c.Add("a"))
	assert.True(t, c.Contains("c"))
	names := c.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{"b", "a", "c"}, c.Names())

	var zero Catalog
	assert.True(t, zero.Add("x"))
	assert.Equal(t, []string{"x"}, zero.Names())
}
