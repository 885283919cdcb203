package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/tonimelisma/drivemirror/internal/graph"
	"github.com/tonimelisma/drivemirror/internal/retry"
	"github.com/tonimelisma/drivemirror/pkg/quickxorhash"
)

// defaultContentType is sent for extensions with no registered MIME type.
const defaultContentType = "application/octet-stream"

// ErrHashMismatch is returned when the service reports a content hash that
// differs from the local file's.
var ErrHashMismatch = errors.New("mirror: uploaded content hash mismatch")

// errFolderNotResolved means a file's destination folder is missing from the
// cache, which only happens if Build was skipped or failed.
var errFolderNotResolved = errors.New("mirror: destination folder not resolved")

// Uploader sends files to their remote folders one at a time.
type Uploader struct {
	api    ContentAPI
	exec   *retry.Executor
	delay  time.Duration
	verify bool
	logger *slog.Logger

	// sleepFunc waits the inter-request delay. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewUploader creates an Uploader. delay is slept after every file. When
// verify is set, a QuickXorHash reported by the service must match the
// local content.
func NewUploader(api ContentAPI, exec *retry.Executor, delay time.Duration, verify bool, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Uploader{
		api:       api,
		exec:      exec,
		delay:     delay,
		verify:    verify,
		logger:    logger,
		sleepFunc: retry.Sleep,
	}
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	ct := mime.TypeByExtension(path.Ext(name))
	if !strings.ContainsRune(ct, '/') {
		return defaultContentType
	}

	return ct
}

// Upload sends every file and records exactly one outcome per file. A
// failure never stops the loop; once ctx is canceled the remaining files
// are recorded as failed without being attempted.
func (u *Uploader) Upload(ctx context.Context, remote RemoteLocation, cache FolderCache, files []Entry, agg *Aggregator) {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			for _, rest := range files[i:] {
				agg.RecordFailed(rest, OutcomeFailed, err.Error())
			}

			return
		}

		err := u.uploadFile(ctx, remote, cache, f, agg)

		switch {
		case err == nil:
			u.logger.Info("uploaded file", slog.String("rel_path", f.RelPath))
			agg.RecordUploaded(f)
		case graph.KindOf(err) == graph.KindLocked:
			u.logger.Warn("remote file is locked",
				slog.String("rel_path", f.RelPath),
				slog.String("error", err.Error()),
			)
			agg.RecordFailed(f, OutcomeLocked, err.Error())
		default:
			u.logger.Error("upload failed",
				slog.String("rel_path", f.RelPath),
				slog.String("path", f.AbsPath),
				slog.String("error", err.Error()),
			)
			agg.RecordFailed(f, OutcomeFailed, err.Error())
		}

		// The delay is skipped only when ctx is already done; the next
		// iteration then records the rest.
		_ = u.sleepFunc(ctx, u.delay)
	}
}

// uploadFile runs the retried PUT for one file. Each attempt opens the file
// again because a request body cannot be replayed after a failed send.
func (u *Uploader) uploadFile(ctx context.Context, remote RemoteLocation, cache FolderCache, f Entry, agg *Aggregator) error {
	folderID, ok := cache[f.ParentRel()]
	if !ok {
		return fmt.Errorf("%w: %q", errFolderNotResolved, f.ParentRel())
	}

	contentType := ContentType(f.Name)

	return u.exec.Do(ctx, "upload "+f.RelPath, func(ctx context.Context) error {
		file, err := os.Open(f.AbsPath)
		if err != nil {
			return fmt.Errorf("mirror: opening %s: %w", f.AbsPath, err)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("mirror: stating %s: %w", f.AbsPath, err)
		}

		item, err := u.api.PutContent(ctx, remote.DriveID, folderID, f.Name, contentType, file, info.Size())
		if err != nil {
			if graph.KindOf(err) == graph.KindLocked {
				agg.CountLocked()
			}

			return err
		}

		if u.verify && item.QuickXorHash != "" {
			return verifyHash(f.AbsPath, item.QuickXorHash)
		}

		return nil
	})
}

// verifyHash compares the local file's QuickXorHash with the remote one.
func verifyHash(localPath, remoteHash string) error {
	local, err := quickxorhash.File(localPath)
	if err != nil {
		return fmt.Errorf("mirror: verifying upload: %w", err)
	}

	if local != remoteHash {
		return fmt.Errorf("%w: local %s, remote %s", ErrHashMismatch, local, remoteHash)
	}

	return nil
}
