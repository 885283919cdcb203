package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/history"
)

const defaultHistoryLimit = 20

var errHistoryDisabled = errors.New(`run history is disabled (state.history_db = "off")`)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistoryList(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum number of runs to list")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run including every failed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printHistoryRun(cc.Stdout, run, cc.Flags.JSON)
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must be >= 0, got %d", keep)
			}

			cc, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}

			cc.Statusf("Removed %d run(s), kept at most %d\n", removed, keep)

			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "number of newest runs to keep")

	return cmd
}

func runHistoryList(cmd *cobra.Command, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be > 0, got %d", limit)
	}

	cc, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	return printHistoryList(cc.Stdout, runs, cc.Flags.JSON)
}

// openHistory opens the configured history database.
func openHistory(cmd *cobra.Command) (*CLIContext, *history.Store, error) {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	path := cc.Cfg.State.HistoryPath()
	if path == "" {
		return nil, nil, errHistoryDisabled
	}

	store, err := history.Open(cmd.Context(), path, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	return cc, store, nil
}
