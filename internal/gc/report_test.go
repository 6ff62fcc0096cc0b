package gc

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// report assembles a vendor-style export around the given compound rows.
func report(sampleID string, rows ...string) string {
	var b strings.Builder
	b.WriteString("[Header]\n")
	b.WriteString("Application Name,GCsolution\n")
	b.WriteString("[Sample Information]\n")
	b.WriteString("Sample Name,broth\n")
	b.WriteString("Sample ID," + sampleID + "\n")
	b.WriteString("[Compound Results(Ch1)]\n")
	b.WriteString("# of IDs,2\n")
	b.WriteString("ID#,Name,Ret. Time,Area,Height,Conc.,Curve\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	b.WriteString("[Group Results(Ch1)]\n")
	b.WriteString("# of Groups,0\n")
	return b.String()
}

func TestParseReportExample(t *testing.T) {
	text := "Sample ID,7\n" +
		"[Compound Results(Ch1)]\n" +
		"# of IDs,2\n" +
		"Name,Conc.\n" +
		"Ethanol,1.25\n" +
		"Acetate,0.40\n" +
		"[Group Results(Ch1)]\n"

	res, err := ParseReport("a.txt", strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, StatusRecord, res.Status)
	assert.Equal(t, 7, res.SampleID)
	assert.Equal(t, []string{"Ethanol", "Acetate"}, res.Compounds)
	require.Len(t, res.Concentrations, 2)
	assert.InDelta(t, 12.5, res.Concentrations[0], 1e-9)
	assert.InDelta(t, 4.0, res.Concentrations[1], 1e-9)
}

func TestParseReportKeepsOnlyNameAndConc(t *testing.T) {
	text := report("12",
		"1,Ethanol,2.31,10452,900,0.5,Linear",
		"2,Butyrate,5.02,2200,310,0.0301,Linear",
	)
	res, err := ParseReport("r.txt", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ethanol", "Butyrate"}, res.Compounds)
	assert.InDelta(t, 5.0, res.Concentrations[0], 1e-9)
	assert.InDelta(t, 0.301, res.Concentrations[1], 1e-9)

	rec, ok := res.Record()
	require.True(t, ok)
	assert.Equal(t, "r.txt", rec.Source)
	assert.InDelta(t, 0.301, rec.Concentrations["Butyrate"], 1e-9)
}

func TestParseReportScalesEveryValue(t *testing.T) {
	values := []string{"0", "0.001", "1", "3.3333", "125.75"}
	rows := make([]string, len(values))
	for i, v := range values {
		rows[i] = "1,C" + string(rune('A'+i)) + ",1,1,1," + v + ",L"
	}
	res, err := ParseReport("s.txt", strings.NewReader(report("1", rows...)))
	require.NoError(t, err)
	want := []float64{0, 0.01, 10, 33.333, 1257.5}
	for i := range want {
		assert.InDelta(t, want[i], res.Concentrations[i], 1e-9, "value %d", i)
	}
}

func TestParseReportIsIdempotent(t *testing.T) {
	text := report("4", "1,Ethanol,1,1,1,0.2,L", "2,Lactate,1,1,1,0.9,L")
	first, err := ParseReport("x.txt", strings.NewReader(text))
	require.NoError(t, err)
	second, err := ParseReport("x.txt", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseReportNoRecordCases(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		reason Reason
	}{
		{
			name:   "no sample id",
			text:   "[Compound Results(Ch1)]\n#,1\nName,Conc.\nEthanol,1\n[Group Results(Ch1)]\n",
			reason: ReasonNoSampleID,
		},
		{
			name:   "non integer sample id",
			text:   report("abc", "1,Ethanol,1,1,1,0.2,L"),
			reason: ReasonNoSampleID,
		},
		{
			name:   "negative sample id",
			text:   report("-3", "1,Ethanol,1,1,1,0.2,L"),
			reason: ReasonNoSampleID,
		},
		{
			name:   "no compound block",
			text:   "Sample ID,5\n[Peak Table(Ch1)]\n1,2,3\n",
			reason: ReasonNoCompoundBlock,
		},
		{
			name:   "group results before block",
			text:   "[Group Results(Ch1)]\nSample ID,5\n[Compound Results(Ch1)]\n#,1\nName,Conc.\nEthanol,1\n",
			reason: ReasonNoSampleID,
		},
		{
			name:   "missing terminator",
			text:   "Sample ID,5\n[Compound Results(Ch1)]\n#,1\nName,Conc.\nEthanol,1\n",
			reason: ReasonUnterminatedBlock,
		},
		{
			name:   "empty input",
			text:   "",
			reason: ReasonNoSampleID,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseReport("f.txt", strings.NewReader(tc.text))
			require.NoError(t, err)
			assert.Equal(t, StatusNoRecord, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			_, ok := res.Record()
			assert.False(t, ok)
		})
	}
}

func TestParseReportMalformedSampleIDWarns(t *testing.T) {
	res, err := ParseReport("w.txt", strings.NewReader(report("x7", "1,Ethanol,1,1,1,0.2,L")))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	assert.Equal(t, KindMalformedSampleID, w.Kind)
	assert.Equal(t, "x7", w.Raw)
	assert.Equal(t, 5, w.Line)
	assert.True(t, errors.Is(w, ErrMalformedSampleID))
}

func TestParseReportLaterValidSampleIDWins(t *testing.T) {
	text := "Sample ID,oops\nSample ID,21\n[Compound Results(Ch1)]\n#,1\nName,Conc.\nEthanol,1\n[Group Results(Ch1)]\n"
	res, err := ParseReport("l.txt", strings.NewReader(text))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 21, res.SampleID)
	assert.Len(t, res.Warnings, 1)
}

func TestParseReportInvalidMarkerKeepsEarlierID(t *testing.T) {
	text := "Sample ID,8\nSample ID,\n[Compound Results(Ch1)]\n#,1\nName,Conc.\nEthanol,1\n[Group Results(Ch1)]\n"
	res, err := ParseReport("k.txt", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, 8, res.SampleID)
}

func TestParseReportIgnoresMarkersInsideBlock(t *testing.T) {
	text := "Sample ID,2\n[Compound Results(Ch1)]\n#,2\nName,Conc.\nSample ID,1\n[Group Results(Ch1)]\n"
	res, err := ParseReport("m.txt", strings.NewReader(text))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 2, res.SampleID)
	assert.Equal(t, []string{"Sample ID"}, res.Compounds)
	assert.InDelta(t, 10.0, res.Concentrations[0], 1e-9)
}

func TestParseReportMalformedConcentration(t *testing.T) {
	for _, raw := range []string{"n.a.", "", "-0.5", "NaN", "Inf"} {
		t.Run(raw, func(t *testing.T) {
			text := report("3", "1,Ethanol,1,1,1,0.2,L", "2,Acetate,1,1,1,"+raw+",L")
			res, err := ParseReport("bad.txt", strings.NewReader(text))
			require.Error(t, err)
			assert.Equal(t, StatusRejected, res.Status)
			assert.Empty(t, res.Compounds)

			var rerr *ReportError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, KindMalformedConcentration, rerr.Kind)
			assert.Equal(t, "bad.txt", rerr.Source)
			assert.Equal(t, ConcColumn, rerr.Field)
			assert.Equal(t, raw, rerr.Raw)
			assert.Equal(t, 10, rerr.Line)
			assert.ErrorIs(t, err, ErrMalformedConcentration)
		})
	}
}

func TestParseReportMalformedBlock(t *testing.T) {
	cases := map[string]string{
		"missing conc column": "Sample ID,1\n[Compound Results(Ch1)]\n#,1\nName,Area\nEthanol,1\n[Group Results(Ch1)]\n",
		"header only":         "Sample ID,1\n[Compound Results(Ch1)]\nName,Conc.\n[Group Results(Ch1)]\n",
		"empty block":         "Sample ID,1\n[Compound Results(Ch1)]\n[Group Results(Ch1)]\n",
		"empty name":          "Sample ID,1\n[Compound Results(Ch1)]\n#,1\nName,Conc.\n ,1\n[Group Results(Ch1)]\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReport("blk.txt", strings.NewReader(text))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedBlock)
		})
	}
}

func TestParseReportEmptyCompoundTable(t *testing.T) {
	text := "Sample ID,9\n[Compound Results(Ch1)]\n# of IDs,0\nName,Conc.\n[Group Results(Ch1)]\n"
	res, err := ParseReport("e.txt", strings.NewReader(text))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Empty(t, res.Compounds)
}

func TestParseReportDuplicateCompoundKeepsPositionTakesLaterValue(t *testing.T) {
	text := report("6", "1,Ethanol,1,1,1,0.1,L", "2,Acetate,1,1,1,0.2,L", "3,Ethanol,1,1,1,0.3,L")
	res, err := ParseReport("d.txt", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ethanol", "Acetate"}, res.Compounds)
	assert.InDelta(t, 3.0, res.Concentrations[0], 1e-9)
}

func TestParseReportHandlesCRLFAndBlankLines(t *testing.T) {
	text := "Sample ID, 15 \r\n[Compound Results(Ch1)]\r\n\r\n# of IDs,1\r\nName,Conc.\r\n\r\nEthanol,0.7\r\n[Group Results(Ch1)]\r\n"
	res, err := ParseReport("crlf.txt", strings.NewReader(text))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 15, res.SampleID)
	assert.InDelta(t, 7.0, res.Concentrations[0], 1e-9)
}

func TestParseReportRejectsInvalidUTF8(t *testing.T) {
	text := "Sample ID,1\n\xff\xfe\n"
	_, err := ParseReport("bin.txt", strings.NewReader(text))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileUnreadable)
}

func TestReportErrorMessage(t *testing.T) {
	err := &ReportError{Source: "a.txt", Kind: KindMalformedConcentration, Line: 4, Field: "Conc.", Raw: "x", Err: errors.New("bad")}
	assert.Equal(t, `a.txt: malformed_concentration at line 4 (Conc.="x"): bad`, err.Error())
	assert.Equal(t, `malformed_concentration at line 4 (Conc.="x"): bad`, err.Detail())
	assert.True(t, KindDuplicateSampleID.Warning())
	assert.False(t, KindMalformedBlock.Warning())
}
