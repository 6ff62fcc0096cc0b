package gc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a problem found while reading or reconciling a report.
type ErrorKind string

const (
	KindFileUnreadable         ErrorKind = "file_unreadable"
	KindMalformedSampleID      ErrorKind = "malformed_sample_id" // warning; scanning continues
	KindMalformedConcentration ErrorKind = "malformed_concentration"
	KindMalformedBlock         ErrorKind = "malformed_block"
	KindDuplicateSampleID      ErrorKind = "duplicate_sample_id" // warning; resolved by upsert
)

// Sentinels matched by ReportError.Is so callers can use errors.Is on a kind.
var (
	ErrFileUnreadable         = errors.New("gc: file unreadable")
	ErrMalformedSampleID      = errors.New("gc: malformed sample id")
	ErrMalformedConcentration = errors.New("gc: malformed concentration")
	ErrMalformedBlock         = errors.New("gc: malformed compound block")
	ErrDuplicateSampleID      = errors.New("gc: duplicate sample id")
)

var kindSentinels = map[ErrorKind]error{
	KindFileUnreadable:         ErrFileUnreadable,
	KindMalformedSampleID:      ErrMalformedSampleID,
	KindMalformedConcentration: ErrMalformedConcentration,
	KindMalformedBlock:         ErrMalformedBlock,
	KindDuplicateSampleID:      ErrDuplicateSampleID,
}

// Warning reports whether the kind is informational rather than fatal for a report.
func (k ErrorKind) Warning() bool {
	return k == KindMalformedSampleID || k == KindDuplicateSampleID
}

// ReportError describes a problem tied to one report file.
type ReportError struct {
	Source string
	Kind   ErrorKind
	Line   int    // 1-based; zero when not tied to a line
	Field  string // column or marker the raw value came from
	Raw    string
	Err    error
}

func (e *ReportError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Kind)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s=%q)", e.Field, e.Raw)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReportError) Unwrap() error { return e.Err }

// Is matches the sentinel error registered for the kind.
func (e *ReportError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// Detail returns the error text without the source prefix.
func (e *ReportError) Detail() string {
	return strings.TrimPrefix(e.Error(), e.Source+": ")
}
