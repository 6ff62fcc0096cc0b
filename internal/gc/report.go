// Package gc reads gas-chromatography text exports and reconciles the compound
// concentrations they report into one row per sample ID.
package gc

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Vendor report markers and columns.
const (
	CompoundMarker = "[Compound Results(Ch1)]"
	GroupMarker    = "[Group Results(Ch1)]"
	SampleIDMarker = "Sample ID"
	NameColumn     = "Name"
	ConcColumn     = "Conc."
)

// ConcentrationScale converts the instrument's concentration unit to the
// reported unit.
const ConcentrationScale = 10.0

const maxLineBytes = 1 << 20

// Status is the outcome of parsing one report.
type Status string

const (
	StatusRecord   Status = "record"
	StatusNoRecord Status = "no_record"
	StatusRejected Status = "rejected"
)

// Reason explains a StatusNoRecord outcome.
type Reason string

const (
	ReasonNoSampleID        Reason = "no_sample_id"
	ReasonNoCompoundBlock   Reason = "no_compound_block"
	ReasonUnterminatedBlock Reason = "unterminated_block"
)

var (
	errInvalidUTF8     = errors.New("invalid UTF-8 text")
	errNegative        = errors.New("negative value")
	errNotFinite       = errors.New("value is not finite")
	errMissingValue    = errors.New("missing value")
	errMissingHeader   = errors.New("block has no column header row")
	errMissingColumns  = errors.New("header lacks Name or Conc. column")
	errEmptyName       = errors.New("compound name is empty")
	errUnparseableLine = errors.New("row is not valid CSV")
)

// SampleRecord is one sample's measured concentrations.
type SampleRecord struct {
	SampleID       int                `json:"sample_id"`
	Concentrations map[string]float64 `json:"concentrations"`
	Source         string             `json:"source"`
}

// ParseResult is what a single report yields. Compounds and Concentrations are
// parallel slices in the order compounds first appear in the block.
type ParseResult struct {
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	Reason         Reason    `json:"reason,omitempty"`
	SampleID       int       `json:"sample_id"`
	Compounds      []string  `json:"compounds,omitempty"`
	Concentrations []float64 `json:"concentrations,omitempty"`

	// Warnings holds skipped Sample ID markers.
	Warnings []*ReportError `json:"-"`
}

// OK reports whether the result carries a usable record.
func (r ParseResult) OK() bool { return r.Status == StatusRecord }

// Record converts a successful result into a SampleRecord.
func (r ParseResult) Record() (SampleRecord, bool) {
	if !r.OK() {
		return SampleRecord{}, false
	}
	concs := make(map[string]float64, len(r.Compounds))
	for i, name := range r.Compounds {
		concs[name] = r.Concentrations[i]
	}
	return SampleRecord{SampleID: r.SampleID, Concentrations: concs, Source: r.Source}, true
}

type scanState int

const (
	stateBeforeBlock scanState = iota
	stateInBlock
	stateDone
)

type blockLine struct {
	num  int
	text string
}

// ParseReport scans one report. Reports without a usable sample ID or compound
// block return StatusNoRecord and a nil error. A non-nil error is always a
// *ReportError and the result is StatusRejected.
func ParseReport(source string, r io.Reader) (ParseResult, error) {
	res := ParseResult{Source: source, Status: StatusNoRecord, SampleID: -1}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	state := stateBeforeBlock
	sawBlock, terminated := false, false
	var block []blockLine
	lineNum := 0
	for state != stateDone && sc.Scan() {
		lineNum++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if !utf8.ValidString(line) {
			return res.reject(&ReportError{Source: source, Kind: KindFileUnreadable, Line: lineNum, Err: errInvalidUTF8})
		}
		switch state {
		case stateBeforeBlock:
			if strings.Contains(line, GroupMarker) {
				state = stateDone
				continue
			}
			if strings.Contains(line, SampleIDMarker) {
				id, raw, err := parseSampleID(line)
				if err != nil {
					res.Warnings = append(res.Warnings, &ReportError{
						Source: source, Kind: KindMalformedSampleID, Line: lineNum,
						Field: SampleIDMarker, Raw: raw, Err: err,
					})
				} else {
					res.SampleID = id
				}
			}
			if strings.Contains(line, CompoundMarker) {
				sawBlock = true
				state = stateInBlock
			}
		case stateInBlock:
			if strings.Contains(line, GroupMarker) {
				terminated = true
				state = stateDone
				continue
			}
			block = append(block, blockLine{num: lineNum, text: line})
		}
	}
	if err := sc.Err(); err != nil {
		return res.reject(&ReportError{Source: source, Kind: KindFileUnreadable, Line: lineNum, Err: err})
	}

	switch {
	case res.SampleID < 0:
		res.Reason = ReasonNoSampleID
		return res, nil
	case !sawBlock:
		res.Reason = ReasonNoCompoundBlock
		return res, nil
	case !terminated:
		res.Reason = ReasonUnterminatedBlock
		return res, nil
	}

	names, concs, err := parseBlock(source, block)
	if err != nil {
		return res.reject(err)
	}
	res.Status = StatusRecord
	res.Compounds = names
	res.Concentrations = concs
	return res, nil
}

func (r ParseResult) reject(err *ReportError) (ParseResult, error) {
	r.Status = StatusRejected
	r.Reason = ""
	r.Compounds = nil
	r.Concentrations = nil
	return r, err
}

// parseSampleID reads the second comma-separated token of a Sample ID line.
func parseSampleID(line string) (int, string, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return 0, "", errMissingValue
	}
	raw := strings.TrimSpace(fields[1])
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, raw, err
	}
	if id < 0 {
		return 0, raw, errNegative
	}
	return id, raw, nil
}

// parseBlock reads the buffered compound block: the first non-blank line is
// skipped, the second names the columns, the rest are data rows.
func parseBlock(source string, block []blockLine) ([]string, []float64, *ReportError) {
	lines := block[:0:0]
	for _, l := range block {
		if strings.TrimSpace(l.text) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		line := 0
		if len(lines) == 1 {
			line = lines[0].num
		}
		return nil, nil, &ReportError{Source: source, Kind: KindMalformedBlock, Line: line, Err: errMissingHeader}
	}

	header, err := splitRow(lines[1].text)
	if err != nil {
		return nil, nil, &ReportError{Source: source, Kind: KindMalformedBlock, Line: lines[1].num, Field: "header", Raw: lines[1].text, Err: err}
	}
	nameIdx, concIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case NameColumn:
			if nameIdx < 0 {
				nameIdx = i
			}
		case ConcColumn:
			if concIdx < 0 {
				concIdx = i
			}
		}
	}
	if nameIdx < 0 || concIdx < 0 {
		return nil, nil, &ReportError{Source: source, Kind: KindMalformedBlock, Line: lines[1].num, Field: "header", Raw: lines[1].text, Err: errMissingColumns}
	}

	var names []string
	var concs []float64
	index := make(map[string]int)
	for _, l := range lines[2:] {
		fields, err := splitRow(l.text)
		if err != nil {
			return nil, nil, &ReportError{Source: source, Kind: KindMalformedBlock, Line: l.num, Raw: l.text, Err: err}
		}
		name := strings.TrimSpace(field(fields, nameIdx))
		if name == "" {
			return nil, nil, &ReportError{Source: source, Kind: KindMalformedBlock, Line: l.num, Field: NameColumn, Raw: l.text, Err: errEmptyName}
		}
		raw := strings.TrimSpace(field(fields, concIdx))
		v, err := parseConcentration(raw)
		if err != nil {
			return nil, nil, &ReportError{Source: source, Kind: KindMalformedConcentration, Line: l.num, Field: ConcColumn, Raw: raw, Err: err}
		}
		if i, seen := index[name]; seen {
			concs[i] = v
			continue
		}
		index[name] = len(names)
		names = append(names, name)
		concs = append(concs, v)
	}
	return names, concs, nil
}

func parseConcentration(raw string) (float64, error) {
	if raw == "" {
		return 0, errMissingValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	if v < 0 {
		return 0, errNegative
	}
	return v * ConcentrationScale, nil
}

func splitRow(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparseableLine, err)
	}
	return rec, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}
