// Package core defines the run history records and the contract every
// history backend implements.
package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"fermentlab/internal/gc"
)

// Driver names a history backend.
type Driver string

const (
	DriverNone     Driver = "none"
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Issue is a persisted form of a rejected report or a warning.
type Issue struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Warning bool   `json:"warning,omitempty"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Raw     string `json:"raw,omitempty"`
	Message string `json:"message"`
}

// IssueFrom converts a report error.
func IssueFrom(err *gc.ReportError) Issue {
	is := Issue{
		Source:  err.Source,
		Kind:    string(err.Kind),
		Warning: err.Kind.Warning(),
		Line:    err.Line,
		Field:   err.Field,
		Raw:     err.Raw,
	}
	if err.Err != nil {
		is.Message = err.Err.Error()
	}
	return is
}

// Run records one parse and reconcile invocation.
type Run struct {
	ID         string    `json:"id"`
	Experiment string    `json:"experiment"`
	CreatedAt  time.Time `json:"created_at"`
	Files      []string  `json:"files"`
	Accepted   int       `json:"accepted"`
	Catalog    []string  `json:"catalog"`
	Rows       []gc.Row  `json:"rows"`
	Issues     []Issue   `json:"issues,omitempty"`
	Artifacts  []string  `json:"artifacts,omitempty"`
}

// NewRun captures a processed batch under a fresh identifier.
func NewRun(experiment string, batch gc.Batch, rec gc.Reconciliation, now time.Time) Run {
	run := Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		CreatedAt:  now.UTC(),
		Accepted:   batch.Accepted(),
		Catalog:    append([]string(nil), rec.Catalog...),
		Rows:       cloneRows(rec.Rows),
	}
	for _, res := range batch.Results {
		run.Files = append(run.Files, res.Source)
	}
	for _, e := range batch.Errors {
		run.Issues = append(run.Issues, IssueFrom(e))
	}
	for _, w := range batch.Warnings {
		run.Issues = append(run.Issues, IssueFrom(w))
	}
	return run
}

// Rejected counts the non-warning issues.
func (r Run) Rejected() int {
	n := 0
	for _, is := range r.Issues {
		if !is.Warning {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r Run) Clone() Run {
	out := r
	out.Files = append([]string(nil), r.Files...)
	out.Catalog = append([]string(nil), r.Catalog...)
	out.Rows = cloneRows(r.Rows)
	out.Issues = append([]Issue(nil), r.Issues...)
	out.Artifacts = append([]string(nil), r.Artifacts...)
	return out
}

func cloneRows(rows []gc.Row) []gc.Row {
	if rows == nil {
		return nil
	}
	out := make([]gc.Row, len(rows))
	for i, row := range rows {
		conc := make(map[string]float64, len(row.Concentrations))
		for k, v := range row.Concentrations {
			conc[k] = v
		}
		out[i] = gc.Row{SampleID: row.SampleID, Concentrations: conc, Sources: append([]string(nil), row.Sources...)}
	}
	return out
}

// SortRuns orders runs by creation time, then ID.
func SortRuns(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

// ErrNotFound is returned when a run ID is unknown.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("run %s not found", e.ID)
}

// Store persists run history.
type Store interface {
	// SaveRun inserts or replaces the run with the same ID.
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns runs ordered by creation time; an empty experiment
	// matches every run.
	ListRuns(ctx context.Context, experiment string) ([]Run, error)
	DeleteRun(ctx context.Context, id string) (bool, error)
	Close() error
	Driver() Driver
}
