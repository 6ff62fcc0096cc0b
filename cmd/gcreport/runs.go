package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fermentlab/internal/persistence"
)

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the history of parse runs",
	}

	var experiment string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				runs, err := store.ListRuns(cmd.Context(), experiment)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if len(runs) == 0 {
					fmt.Fprintln(a.out, "no runs recorded")
					return nil
				}
				fmt.Fprintln(a.out, renderRuns(runs))
				return nil
			})
		},
	}
	list.Flags().StringVarP(&experiment, "experiment", "e", "", "Only runs of this experiment")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode run: %w", err)
				}
				fmt.Fprintln(a.out, string(out))
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Remove a run from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				ok, err := store.DeleteRun(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to delete run: %w", err)
				}
				if !ok {
					return persistence.ErrNotFound{ID: args[0]}
				}
				fmt.Fprintln(a.out, "deleted", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func (a *app) withHistory(ctx context.Context, fn func(persistence.Store) error) error {
	store, err := a.history(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("run history is disabled (storage.driver is none)")
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}
