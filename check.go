package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
	"github.com/tonimelisma/drivemirror/internal/credential"
	"github.com/tonimelisma/drivemirror/internal/graph"
)

// errNotAFolder is returned when remote.folder_id names a file.
var errNotAFolder = errors.New("destination is not a folder")

// checkResult is the --json form of a successful check.
type checkResult struct {
	DriveID    string `json:"drive_id"`
	DriveName  string `json:"drive_name"`
	DriveType  string `json:"drive_type"`
	FolderID   string `json:"folder_id"`
	FolderName string `json:"folder_name"`
	ChildCount int    `json:"child_count"`
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify credentials and that the destination folder is reachable",
		Long: `Resolve configuration, obtain a token, and fetch the destination drive and
folder without changing anything. Use it as a pipeline preflight step.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}

	addRunFlags(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	cfg := cc.Cfg

	if err := config.ValidateResolved(cfg); err != nil {
		return fmt.Errorf("incomplete configuration: %w", err)
	}

	ctx := cmd.Context()

	tokens, err := credential.NewSource(ctx, credential.Options{
		AccessToken: cc.Env.AccessToken,
		TokenFile:   cfg.Auth.TokenFile,
		ClientID:    cfg.Auth.ClientID,
		Tenant:      cfg.Auth.Tenant,
	}, cc.Logger)
	if err != nil {
		return err
	}

	client := graph.NewClient(cfg.Network.GraphBaseURL, newHTTPClient(cfg.Network), tokens, cc.Logger, userAgent(cfg.Network))

	res, err := checkDestination(ctx, client, cfg.Remote, graphExecutor(cfg.Retry, cc).Do)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return writeJSON(cc.Stdout, res)
	}

	fmt.Fprintf(cc.Stdout, "Drive:  %s (%s, %s)\n", res.DriveName, res.DriveType, res.DriveID)
	fmt.Fprintf(cc.Stdout, "Folder: %s (%s, %d children)\n", res.FolderName, res.FolderID, res.ChildCount)
	fmt.Fprintln(cc.Stdout, "OK")

	return nil
}

// destinationAPI is what checkDestination needs from the Graph client.
type destinationAPI interface {
	Drive(ctx context.Context, driveID string) (*graph.Drive, error)
	GetItem(ctx context.Context, driveID, itemID string) (*graph.Item, error)
}

// doFunc runs one remote call with retries.
type doFunc func(ctx context.Context, name string, fn func(ctx context.Context) error) error

func checkDestination(ctx context.Context, api destinationAPI, remote config.RemoteConfig, do doFunc) (*checkResult, error) {
	var (
		drive *graph.Drive
		item  *graph.Item
	)

	err := do(ctx, "get drive", func(ctx context.Context) error {
		var err error
		drive, err = api.Drive(ctx, remote.DriveID)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching drive %s: %w", remote.DriveID, err)
	}

	err = do(ctx, "get folder", func(ctx context.Context) error {
		var err error
		item, err = api.GetItem(ctx, remote.DriveID, remote.FolderID)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching folder %s: %w", remote.FolderID, err)
	}

	if !item.IsFolder {
		return nil, fmt.Errorf("%w: %s (%s)", errNotAFolder, item.Name, item.ID)
	}

	return &checkResult{
		DriveID:    drive.ID,
		DriveName:  drive.Name,
		DriveType:  drive.DriveType,
		FolderID:   item.ID,
		FolderName: item.Name,
		ChildCount: item.ChildCount,
	}, nil
}
