package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivemirror/internal/retry"
)

// ErrFilesFailed is wrapped by Run's error when the run completed but at
// least one file was not uploaded.
var ErrFilesFailed = errors.New("mirror: one or more files failed to upload")

// Options configures a single Run.
type Options struct {
	Remote        RemoteLocation
	SyncRoot      string
	Delay         time.Duration // slept after every upload and conflict resolution
	Scan          ScanOptions
	VerifyUploads bool
}

// Validate checks that the options name a destination and a source.
func (o Options) Validate() error {
	var errs []error

	if o.Remote.DriveID == "" {
		errs = append(errs, errors.New("mirror: remote drive ID is required"))
	}

	if o.Remote.FolderID == "" {
		errs = append(errs, errors.New("mirror: remote folder ID is required"))
	}

	if o.SyncRoot == "" {
		errs = append(errs, errors.New("mirror: sync root is required"))
	}

	if o.Delay < 0 {
		errs = append(errs, fmt.Errorf("mirror: request delay must be >= 0, got %s", o.Delay))
	}

	if err := o.Scan.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Plan is what a run would do, computed without touching the remote.
type Plan struct {
	Folders []string
	Files   []string
}

// Engine runs mirror passes against one remote API.
type Engine struct {
	api    DriveAPI
	exec   *retry.Executor
	logger *slog.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
	newRunID  func() string
}

// NewEngine creates an Engine. exec supplies the retry policy for every
// remote call.
func NewEngine(api DriveAPI, exec *retry.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		api:       api,
		exec:      exec,
		logger:    logger,
		sleepFunc: retry.Sleep,
		nowFunc:   time.Now,
		newRunID:  uuid.NewString,
	}
}

// Run scans the sync root, builds the remote folder tree, and uploads every
// file. The returned report is always populated. The error is non-nil when
// the scan failed, a folder could not be ensured (the run stops there), or
// any file failed (wrapping ErrFilesFailed).
func (e *Engine) Run(ctx context.Context, opts Options) (Report, error) {
	agg := NewAggregator(e.newRunID(), e.nowFunc())
	runID := agg.report.RunID
	logger := e.logger.With(slog.String("run_id", runID))

	if err := opts.Validate(); err != nil {
		agg.Finish(e.nowFunc(), err)
		return agg.Report(), err
	}

	logger.Info("sync run starting",
		slog.String("sync_root", opts.SyncRoot),
		slog.String("drive_id", opts.Remote.DriveID),
		slog.String("folder_id", opts.Remote.FolderID),
		slog.Duration("delay", opts.Delay),
	)

	scan, err := NewScanner(opts.Scan, logger).Scan(ctx, opts.SyncRoot)
	if err != nil {
		logger.Error("scan failed", slog.String("error", err.Error()))
		agg.Finish(e.nowFunc(), err)

		return agg.Report(), err
	}

	cache := NewFolderCache(opts.Remote.FolderID)

	builder := NewFolderBuilder(e.api, e.exec, opts.Delay, logger)
	builder.sleepFunc = e.sleepFunc

	if err := builder.Build(ctx, opts.Remote, scan.FolderPaths(), cache, agg); err != nil {
		agg.Finish(e.nowFunc(), err)

		return agg.Report(), err
	}

	uploader := NewUploader(e.api, e.exec, opts.Delay, opts.VerifyUploads, logger)
	uploader.sleepFunc = e.sleepFunc
	uploader.Upload(ctx, opts.Remote, cache, scan.Files, agg)

	agg.Finish(e.nowFunc(), nil)
	report := agg.Report()

	logger.Info("sync run finished",
		slog.Int("uploaded", report.UploadedCount),
		slog.Int("failed", report.FailedCount),
		slog.Int("folders_created", report.FoldersCreated),
		slog.Int("folders_reused", report.FoldersReused),
		slog.Int("locked", report.LockedCount),
		slog.Duration("duration", report.Duration()),
	)

	if report.FailedCount > 0 {
		return report, fmt.Errorf("%w: %s", ErrFilesFailed, report.Error)
	}

	return report, nil
}

// Plan scans the sync root and lists what Run would create and upload.
func (e *Engine) Plan(ctx context.Context, opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	scan, err := NewScanner(opts.Scan, e.logger).Scan(ctx, opts.SyncRoot)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Folders: scan.FolderPaths(), Files: make([]string, 0, len(scan.Files))}
	for _, f := range scan.Files {
		plan.Files = append(plan.Files, f.RelPath)
	}

	return plan, nil
}
