package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fermentlab/internal/export"
	"fermentlab/internal/gc"
	"fermentlab/internal/metrics"
	"fermentlab/internal/persistence"
)

type parseOptions struct {
	files       []string
	dirs        []string
	outdir      string
	experiment  string
	recursive   bool
	strict      bool
	workers     int
	metricsFile string
}

func (a *app) parseCmd() *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse GC reports and export the per-sample concentration table",
		Long: `Reads every given report and every report found in the given directories,
then writes <experiment>_data.csv, <experiment>_data.xlsx,
<experiment>_data.json and <experiment>_compounds.csv.

Example:
  gcreport parse -i runs/2026-07 -r -e succinate -o results -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runParse(opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.files, "file", "f", nil, "GC report file (repeatable)")
	f.StringArrayVarP(&opts.dirs, "indir", "i", nil, "Directory holding GC reports (repeatable)")
	f.StringVarP(&opts.outdir, "outdir", "o", "", "Directory or key prefix results are written to")
	f.StringVarP(&opts.experiment, "experiment", "e", "", "Experiment name used as the base of result files (required)")
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "Search directories recursively")
	f.BoolVar(&opts.strict, "strict", false, "Exit non-zero when any report was rejected")
	f.IntVar(&opts.workers, "workers", 0, "Parallel parsers (default from config)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	_ = cmd.MarkFlagRequired("experiment")
	return cmd
}

func (a *app) runParse(opts *parseOptions) error {
	ctx, cancel := signalContext()
	defer cancel()

	roots := append(append([]string(nil), opts.files...), opts.dirs...)
	if len(roots) == 0 {
		return errors.New("no input: use --file or --indir")
	}
	paths, err := gc.Discover(roots, gc.DiscoverOptions{
		Extension: a.cfg.Parse.Extension,
		Recursive: opts.recursive || a.cfg.Parse.Recursive,
	})
	if err != nil {
		return fmt.Errorf("failed to discover reports: %w", err)
	}
	if len(paths) == 0 {
		return errors.New("no GC reports found")
	}
	a.logger.Info("parsing reports", zap.Int("files", len(paths)), zap.String("experiment", opts.experiment))

	workers := opts.workers
	if workers <= 0 {
		workers = a.cfg.Parse.Workers
	}
	recorder := metrics.New()
	proc := &gc.Processor{Workers: workers, Logger: a.logger, Observer: recorder}
	batch, rec := proc.Run(ctx, paths)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("parse interrupted: %w", err)
	}

	store, prefix, err := a.artifactStore(ctx, opts.outdir)
	if err != nil {
		return err
	}
	exporter := export.NewExporter(store, export.ZapAuditLogger{Logger: a.logger}, a.logger)
	arts, err := exporter.ExportReconciliation(ctx, rec, export.Options{
		Prefix:     prefix,
		Experiment: opts.experiment,
		Replace:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}

	run := persistence.NewRun(opts.experiment, batch, rec, time.Now())
	for _, art := range arts {
		run.Artifacts = append(run.Artifacts, art.Key)
	}
	if err := a.saveRun(ctx, run); err != nil {
		return err
	}

	recorder.MarkFinished(time.Now())
	textfile := opts.metricsFile
	if textfile == "" {
		textfile = a.cfg.Metrics.Textfile
	}
	if textfile != "" {
		if err := recorder.WriteTextfile(textfile); err != nil {
			return err
		}
	}

	if a.verbose > 0 {
		fmt.Fprintln(a.out, renderSamples(rec, a.verbose > 1))
	}
	fmt.Fprintf(a.out, "run %s: %d files, %d accepted, %d rejected, %d samples, %d compounds\n",
		run.ID, len(batch.Results), batch.Accepted(), len(batch.Errors), len(rec.Rows), len(rec.Catalog))
	for _, art := range arts {
		fmt.Fprintln(a.out, "  wrote", art.Key)
	}

	if opts.strict && len(batch.Errors) > 0 {
		return fmt.Errorf("%d report(s) rejected", len(batch.Errors))
	}
	return nil
}

func (a *app) saveRun(ctx context.Context, run persistence.Run) error {
	store, err := a.history(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer func() { _ = store.Close() }()
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	a.logger.Debug("run saved", zap.String("run_id", run.ID), zap.String("driver", string(store.Driver())))
	return nil
}
