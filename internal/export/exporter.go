package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fermentlab/internal/blob"
	"fermentlab/internal/gc"
)

// Status is the outcome recorded for one artifact.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact describes a stored export.
type Artifact struct {
	Key         string    `json:"key"`
	Dataset     string    `json:"dataset"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEntry captures one export attempt.
type AuditEntry struct {
	ID         string
	Action     string
	Experiment string
	Dataset    string
	Format     Format
	Key        string
	Status     Status
	Reason     string
	OccurredAt time.Time
}

// AuditLogger records export attempts.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Options controls where and how artifacts are written.
type Options struct {
	Prefix     string // key prefix, usually the output directory
	Experiment string // stored as object metadata
	Replace    bool   // delete an existing key before writing
	URLExpiry  time.Duration
}

// Exporter writes datasets into a blob store.
type Exporter struct {
	store  blob.Store
	audit  AuditLogger
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter returns an exporter. audit and logger may be nil.
func NewExporter(store blob.Store, audit AuditLogger, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the object key for a dataset in a given format.
func Key(prefix, name string, format Format) string {
	return path.Join(prefix, name+"."+string(format))
}

// Export materializes ds in each requested format and stores the results.
// Repeated formats are written once. The first failure stops the export and
// the artifacts stored so far are returned with the error.
func (e *Exporter) Export(ctx context.Context, ds Dataset, formats []Format, opts Options) ([]Artifact, error) {
	seen := make(map[Format]struct{}, len(formats))
	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		art, err := e.exportOne(ctx, ds, format, opts)
		key := Key(opts.Prefix, ds.Name, format)
		if err != nil {
			e.record(ctx, opts, ds.Name, format, key, StatusFailed, err.Error())
			e.logger.Error("export failed", zap.String("key", key), zap.Error(err))
			return artifacts, err
		}
		e.record(ctx, opts, ds.Name, format, key, StatusSucceeded, "")
		e.logger.Debug("artifact stored", zap.String("key", art.Key), zap.Int64("bytes", art.SizeBytes))
		artifacts = append(artifacts, art)
	}
	return artifacts, nil
}

func (e *Exporter) exportOne(ctx context.Context, ds Dataset, format Format, opts Options) (Artifact, error) {
	payload, err := Materialize(format, ds)
	if err != nil {
		return Artifact{}, err
	}
	key := Key(opts.Prefix, ds.Name, format)
	if opts.Replace {
		if _, err := e.store.Delete(ctx, key); err != nil {
			return Artifact{}, fmt.Errorf("replace %s: %w", key, err)
		}
	}
	metadata := map[string]string{
		"dataset": ds.Name,
		"format":  string(format),
		"rows":    strconv.Itoa(len(ds.Rows)),
	}
	if opts.Experiment != "" {
		metadata["experiment"] = opts.Experiment
	}
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: format.ContentType(),
		Metadata:    metadata,
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact failed: %w", err)
	}

	art := Artifact{
		Key:         info.Key,
		Dataset:     ds.Name,
		Format:      format,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		Rows:        len(ds.Rows),
		ETag:        info.ETag,
		CreatedAt:   info.LastModified,
	}
	if art.ContentType == "" {
		art.ContentType = format.ContentType()
	}
	if art.SizeBytes == 0 {
		art.SizeBytes = int64(len(payload))
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = e.now()
	}

	url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: opts.URLExpiry})
	switch {
	case err == nil:
		art.URL = url
	case errors.Is(err, blob.ErrUnsupported):
	default:
		return art, fmt.Errorf("presign %s: %w", key, err)
	}
	return art, nil
}

func (e *Exporter) record(ctx context.Context, opts Options, dataset string, format Format, key string, status Status, reason string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "gc_export",
		Experiment: opts.Experiment,
		Dataset:    dataset,
		Format:     format,
		Key:        key,
		Status:     status,
		Reason:     reason,
		OccurredAt: e.now(),
	})
}

// ExportReconciliation writes the standard result set of one experiment:
// <exp>_data in csv, xlsx and json, and <exp>_compounds as csv.
func (e *Exporter) ExportReconciliation(ctx context.Context, rec gc.Reconciliation, opts Options) ([]Artifact, error) {
	data := ConcentrationDataset(opts.Experiment+"_data", rec)
	arts, err := e.Export(ctx, data, []Format{FormatCSV, FormatXLSX, FormatJSON}, opts)
	if err != nil {
		return arts, err
	}
	compounds := CompoundDataset(opts.Experiment+"_compounds", rec.Catalog)
	more, err := e.Export(ctx, compounds, []Format{FormatCSV}, opts)
	return append(arts, more...), err
}

// ZapAuditLogger writes audit entries as structured log lines.
type ZapAuditLogger struct {
	Logger *zap.Logger
}

func (l ZapAuditLogger) Record(_ context.Context, entry AuditEntry) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("audit_id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("experiment", entry.Experiment),
		zap.String("dataset", entry.Dataset),
		zap.String("format", string(entry.Format)),
		zap.String("key", entry.Key),
		zap.String("status", string(entry.Status)),
		zap.Time("occurred_at", entry.OccurredAt),
	}
	if entry.Reason != "" {
		fields = append(fields, zap.String("reason", entry.Reason))
	}
	l.Logger.Info("audit", fields...)
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
