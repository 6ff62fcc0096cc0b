// Command gcreport reads gas-chromatography reports, reconciles them per
// sample and exports the resulting tables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fermentlab/internal/blob"
	"fermentlab/internal/config"
	"fermentlab/internal/logging"
	"fermentlab/internal/persistence"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    int

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:   "gcreport",
		Short: "Reconcile GC report exports into per-sample concentration tables",
		Long: `gcreport reads the text exports of a gas chromatograph, keeps the Name and
Conc. columns of each compound block and merges every report into one row per
sample ID.

Results are written as csv, xlsx and json to the configured artifact store
and every run is kept in the run history.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			a.cfg = cfg
			logger, err := logging.New(logging.Verbosity(cfg.Log, a.verbose))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "Path to the YAML config file")
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "Print result tables (-vv adds file names) and debug logs")

	root.AddCommand(a.parseCmd(), a.cleanCmd(), a.keggCmd(), a.runsCmd())
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// artifactStore opens the store outputs go to. With the filesystem driver
// the store is rooted at dir and keys carry no prefix; other drivers use dir
// as the key prefix.
func (a *app) artifactStore(ctx context.Context, dir string) (blob.Store, string, error) {
	driver := a.cfg.Blob.Driver
	if dir != "" && (driver == "" || driver == string(blob.DriverFilesystem)) {
		store, err := blob.NewFilesystem(dir)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open output directory: %w", err)
		}
		return store, "", nil
	}
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open artifact store: %w", err)
	}
	if dir == "" {
		return store, "", nil
	}
	return store, filepath.ToSlash(filepath.Clean(dir)), nil
}

// history opens the run store. A nil store means history is disabled.
func (a *app) history(ctx context.Context) (persistence.Store, error) {
	store, err := persistence.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}
