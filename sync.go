package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
	"github.com/tonimelisma/drivemirror/internal/mirror"
	"github.com/tonimelisma/drivemirror/internal/notify"
)

// Run flag names, shared by sync and watch and read back by cliOverrides.
const (
	flagDriveID    = "drive-id"
	flagFolderID   = "folder-id"
	flagSource     = "source"
	flagDelay      = "delay"
	flagMaxRetries = "max-retries"
	flagVerify     = "verify"
)

// addRunFlags registers the flags that override the run configuration.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String(flagDriveID, "", "destination drive ID")
	f.String(flagFolderID, "", "destination folder item ID")
	f.String(flagSource, "", "local directory to mirror")
	f.Duration(flagDelay, 0, "pause after each upload and conflict lookup (e.g. 500ms)")
	f.Int(flagMaxRetries, 0, "retries per remote call after the first attempt")
	f.Bool(flagVerify, true, "verify uploads against the remote QuickXorHash")
}

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the source directory into the remote folder once",
		Long: `Scan the source directory, create any missing remote folders, and upload
every file, replacing remote files with the same name. Nothing is deleted
remotely.

The command exits non-zero when any file or folder failed, after printing
the full report. Use --dry-run to list what would be uploaded without
contacting the remote.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, dryRun)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "scan and print the plan without remote calls")

	return cmd
}

func runSync(cmd *cobra.Command, dryRun bool) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	if dryRun {
		if err := config.ValidateResolved(cc.Cfg); err != nil {
			return fmt.Errorf("incomplete configuration: %w", err)
		}

		plan, err := mirror.NewEngine(nil, nil, cc.Logger).Plan(ctx, mirrorOptions(cc.Cfg))
		if err != nil {
			return err
		}

		return printPlan(cc.Stdout, plan, cc.Flags.JSON)
	}

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

	cc.Statusf("Mirroring %s into drive %s, folder %s\n",
		cc.Cfg.Sync.SourceDir, cc.Cfg.Remote.DriveID, cc.Cfg.Remote.FolderID)

	report, runErr := session.run(ctx)

	if path := cc.Cfg.Notify.OutputsFile; path != "" {
		if err := notify.AppendOutputs(path, report); err != nil {
			cc.Logger.Warn("writing workflow outputs failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := printReport(cc.Stdout, report, cc.Flags.JSON); err != nil {
		return err
	}

	return runErr
}
