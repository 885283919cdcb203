package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror once, then again whenever the source directory changes",
		Long: `Run a sync immediately, then watch the source directory and run again after
changes settle for sync.watch_debounce. Runs never overlap; changes made
during a run schedule one more run. A failed run is logged and watching
continues. Stop with Ctrl-C.`,
		RunE: runWatch,
	}

	addRunFlags(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	session, err := newRunSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	release, err := acquireRunLock(runLockPath(cc.Cfg.Remote))
	if err != nil {
		return err
	}
	defer release()

	w := watch.New(cc.Cfg.Sync.SourceDir, cc.Cfg.Sync.WatchDebounceDuration(), func(ctx context.Context) error {
		report, err := session.run(ctx)
		if !cc.Flags.Quiet {
			if printErr := printReport(cc.Stdout, report, cc.Flags.JSON); printErr != nil {
				return printErr
			}
		}

		return err
	}, cc.Logger)

	return w.Watch(ctx)
}
