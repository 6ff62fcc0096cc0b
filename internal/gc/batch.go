package gc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultExtension is the file suffix of GC text exports.
const DefaultExtension = ".txt"

// DiscoverOptions controls report discovery under directories.
type DiscoverOptions struct {
	Extension string // default ".txt"
	Recursive bool
}

// Discover expands roots into report paths. Files are kept as given;
// directories contribute files with the configured extension in lexical
// order, descending into subdirectories only when Recursive is set. A root
// that cannot be stat'ed is kept as a path so parsing reports it as
// unreadable. Paths reachable through several roots are listed once, at
// their first position.
func Discover(roots []string, opts DiscoverOptions) ([]string, error) {
	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	var paths []string
	seen := make(map[string]bool)
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			add(root)
			continue
		}
		if !opts.Recursive {
			entries, err := os.ReadDir(root)
			if err != nil {
				return nil, fmt.Errorf("failed to list reports: %w", err)
			}
			for _, e := range entries {
				if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext) {
					add(filepath.Join(root, e.Name()))
				}
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ext) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk reports: %w", err)
		}
	}
	return paths, nil
}

// Observer receives per-report outcomes. ReportParsed may be called from
// several goroutines at once.
type Observer interface {
	ReportParsed(status Status, elapsed time.Duration)
	ReportFailed(kind ErrorKind)
	DuplicateSample(sampleID int)
}

type nopObserver struct{}

func (nopObserver) ReportParsed(Status, time.Duration) {}
func (nopObserver) ReportFailed(ErrorKind)             {}
func (nopObserver) DuplicateSample(int)                {}

// Batch holds the per-file outcomes of a run, in input order.
type Batch struct {
	Results  []ParseResult
	Errors   []*ReportError // files rejected or unreadable
	Warnings []*ReportError // skipped markers and duplicate sample IDs
}

// Accepted counts results carrying a record.
func (b Batch) Accepted() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Processor parses report files and reconciles them.
type Processor struct {
	Workers  int // <= 1 parses sequentially
	Logger   *zap.Logger
	Observer Observer
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Processor) observer() Observer {
	if p.Observer == nil {
		return nopObserver{}
	}
	return p.Observer
}

// ParseFile opens and parses one report.
func (p *Processor) ParseFile(path string) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		res := ParseResult{Source: path, Status: StatusRejected, SampleID: -1}
		return res, &ReportError{Source: path, Kind: KindFileUnreadable, Err: err}
	}
	defer func() { _ = f.Close() }()
	return ParseReport(path, f)
}

// ParseFiles parses every path. Files are independent, so they may be parsed
// concurrently; each outcome lands in its input slot so the returned order
// never depends on scheduling. A cancelled context leaves unscheduled files
// out of the batch.
func (p *Processor) ParseFiles(ctx context.Context, paths []string) Batch {
	type slot struct {
		res  ParseResult
		err  error
		done bool
	}
	slots := make([]slot, len(paths))
	parse := func(i int) {
		start := time.Now()
		res, err := p.ParseFile(paths[i])
		p.observer().ReportParsed(res.Status, time.Since(start))
		slots[i] = slot{res: res, err: err, done: true}
	}

	workers := p.Workers
	if workers <= 1 {
		for i := range paths {
			if ctx.Err() != nil {
				break
			}
			parse(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range paths {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				parse(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	log := p.logger()
	var batch Batch
	for _, s := range slots {
		if !s.done {
			continue
		}
		batch.Results = append(batch.Results, s.res)
		batch.Warnings = append(batch.Warnings, s.res.Warnings...)
		for _, w := range s.res.Warnings {
			log.Warn("skipped sample id marker", zap.String("file", w.Source), zap.Int("line", w.Line), zap.String("raw", w.Raw))
		}
		if s.err != nil {
			var rerr *ReportError
			if !errors.As(s.err, &rerr) {
				rerr = &ReportError{Source: s.res.Source, Kind: KindFileUnreadable, Err: s.err}
			}
			batch.Errors = append(batch.Errors, rerr)
			p.observer().ReportFailed(rerr.Kind)
			log.Error("report rejected", zap.String("file", rerr.Source), zap.String("kind", string(rerr.Kind)), zap.Error(rerr))
			continue
		}
		switch s.res.Status {
		case StatusRecord:
			log.Debug("report parsed", zap.String("file", s.res.Source), zap.Int("sample_id", s.res.SampleID), zap.Int("compounds", len(s.res.Compounds)))
		case StatusNoRecord:
			log.Info("report has no sample record", zap.String("file", s.res.Source), zap.String("reason", string(s.res.Reason)))
		}
	}
	return batch
}

// Run parses paths and reconciles the accepted records.
func (p *Processor) Run(ctx context.Context, paths []string) (Batch, Reconciliation) {
	batch := p.ParseFiles(ctx, paths)
	rec := Reconcile(batch.Results)
	for _, d := range rec.Duplicates {
		id, _ := strconv.Atoi(d.Raw)
		p.observer().DuplicateSample(id)
		p.logger().Warn("duplicate sample id merged", zap.String("file", d.Source), zap.String("sample_id", d.Raw), zap.Error(d.Err))
	}
	batch.Warnings = append(batch.Warnings, rec.Duplicates...)
	p.logger().Info("reconciled reports",
		zap.Int("files", len(batch.Results)),
		zap.Int("accepted", batch.Accepted()),
		zap.Int("rejected", len(batch.Errors)),
		zap.Int("samples", len(rec.Rows)),
		zap.Int("compounds", len(rec.Catalog)))
	return batch, rec
}
