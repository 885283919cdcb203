package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and handed to
// subcommands through the command context.
type CLIContext struct {
	Flags     CLIFlags
	Env       config.EnvOverrides
	Cfg       *config.Config
	CfgSource string // config file actually read, "" when running on defaults
	Logger    *slog.Logger
	Stdout    io.Writer
	Stderr    io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext installed by the root pre-run.
func cliContextFrom(ctx context.Context) (*CLIContext, error) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errors.New("internal error: command context not initialized")
	}

	return cc, nil
}

// Statusf prints a progress line to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Stderr, format, args...)
	}
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "drivemirror",
		Short: "Mirror a local directory tree into a OneDrive folder",
		Long: `drivemirror uploads a local directory tree into a OneDrive or SharePoint
folder, recreating the folder hierarchy and replacing files that already
exist. It is built for unattended use in CI pipelines: transient Graph
errors are retried with backoff and every run ends with a report.`,
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "only log errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves configuration through the override chain and
// builds the logger.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	env, err := config.ReadEnvOverrides()
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cli, err := cliOverrides(cmd, flags)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	source := ""
	if path, explicit := config.ConfigPath(env, cli); explicit || fileExists(path) {
		source = path
	}

	stderr := cmd.ErrOrStderr()

	return &CLIContext{
		Flags:     flags,
		Env:       env,
		Cfg:       cfg,
		CfgSource: source,
		Logger:    buildLogger(cfg.Logging, flags, stderr),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    stderr,
	}, nil
}

// cliOverrides collects the flags the user actually set. Run flags only
// exist on sync and watch; Lookup returns nil elsewhere.
func cliOverrides(cmd *cobra.Command, flags CLIFlags) (config.CLIOverrides, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	fs := cmd.Flags()

	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}

	var err error

	if changed(flagDriveID) {
		v, _ := fs.GetString(flagDriveID)
		cli.DriveID = &v
	}

	if changed(flagFolderID) {
		v, _ := fs.GetString(flagFolderID)
		cli.FolderID = &v
	}

	if changed(flagSource) {
		v, _ := fs.GetString(flagSource)
		cli.SourceDir = &v
	}

	if changed(flagDelay) {
		v, getErr := fs.GetDuration(flagDelay)
		err = errors.Join(err, getErr)
		cli.RequestDelay = &v
	}

	if changed(flagMaxRetries) {
		v, getErr := fs.GetInt(flagMaxRetries)
		err = errors.Join(err, getErr)
		cli.MaxRetries = &v
	}

	if changed(flagVerify) {
		v, getErr := fs.GetBool(flagVerify)
		err = errors.Join(err, getErr)
		cli.VerifyUploads = &v
	}

	if err != nil {
		return config.CLIOverrides{}, fmt.Errorf("reading flags: %w", err)
	}

	return cli, nil
}

// buildLogger creates the process logger. The config level is the
// baseline; --verbose and --quiet override it. Format "auto" picks text on
// a terminal and JSON otherwise.
func buildLogger(lc config.LoggingConfig, flags CLIFlags, w io.Writer) *slog.Logger {
	level := parseLevel(lc.LogLevel)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(lc.LogFormat, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	default:
		return !isTerminal(w)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return err == nil
}
