package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fermentlab/internal/export"
	"fermentlab/internal/ferment"
	"fermentlab/internal/gc"
)

func (a *app) cleanCmd() *cobra.Command {
	var (
		gcDir    string
		cultures bool
	)
	cmd := &cobra.Command{
		Use:   "clean <workbook.xlsx>",
		Short: "Fill sampling times and GC concentrations into a fermentation workbook",
		Long: `Reads the "Data", "Sampling times" and "Culture types" sheets of a raw
fermentation workbook, fills in the actual sampling times, computes the
elapsed hours from planned time point 0 and merges the GC concentrations
found under gc_output/ by sample ID.

Writes cleaned_data/<base>cleaned.csv, cleaned_data/<base>cleaned.xlsx and
cleaned_data/<base>compound_list.csv next to the workbook, where <base> is
the workbook name without "raw.xlsx".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClean(args[0], gcDir, cultures)
		},
	}
	cmd.Flags().StringVar(&gcDir, "gc-dir", "", "Directory holding GC reports (default: gc_output next to the workbook)")
	cmd.Flags().BoolVar(&cultures, "cultures", false, "Copy Culture types columns onto data rows")
	return cmd
}

func (a *app) runClean(workbook, gcDir string, cultures bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	workdir := filepath.Dir(workbook)
	if gcDir == "" {
		gcDir = filepath.Join(workdir, "gc_output")
	}

	wb, err := ferment.LoadWorkbook(workbook)
	if err != nil {
		return err
	}
	ds, err := wb.Clean(ferment.Options{FillCultures: cultures})
	if err != nil {
		return fmt.Errorf("failed to clean workbook: %w", err)
	}

	paths, err := gc.Discover([]string{gcDir}, gc.DiscoverOptions{Extension: a.cfg.Parse.Extension, Recursive: true})
	if err != nil {
		return fmt.Errorf("failed to discover reports: %w", err)
	}
	proc := &gc.Processor{Workers: a.cfg.Parse.Workers, Logger: a.logger}
	_, rec := proc.Run(ctx, paths)

	report := ds.Merge(rec)
	for _, id := range report.Appended {
		a.logger.Warn("sample id not in workbook, row appended", zap.Int("sample_id", id))
	}
	a.logger.Info("merged GC results",
		zap.Int("updated", len(report.Updated)),
		zap.Int("appended", len(report.Appended)),
		zap.Strings("new_columns", report.Columns))

	store, prefix, err := a.artifactStore(ctx, workdir)
	if err != nil {
		return err
	}
	exporter := export.NewExporter(store, export.ZapAuditLogger{Logger: a.logger}, a.logger)
	arts, err := ds.Write(ctx, exporter, prefix, ferment.OutputBase(workbook), rec.Catalog)
	if err != nil {
		return fmt.Errorf("failed to write cleaned data: %w", err)
	}
	for _, art := range arts {
		fmt.Fprintln(a.out, "wrote", art.Key)
	}
	return nil
}
