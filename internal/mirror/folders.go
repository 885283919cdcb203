package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/drivemirror/internal/graph"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

// Errors from conflict resolution. Both abort the run: the remote tree is in
// a state the builder will not guess its way out of.
var (
	ErrConflictUnresolved = errors.New("mirror: folder conflict reported but no matching folder found")
	ErrAmbiguousFolder    = errors.New("mirror: more than one remote folder matches name")
)

// FolderError is the fatal error for a folder that could not be created or
// resolved. Path is the relative folder path.
type FolderError struct {
	Path string
	Err  error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("mirror: ensuring remote folder %q: %v", e.Path, e.Err)
}

func (e *FolderError) Unwrap() error {
	return e.Err
}

// FolderBuilder makes sure every folder of the local tree exists remotely.
type FolderBuilder struct {
	api    FolderAPI
	exec   *retry.Executor
	delay  time.Duration
	logger *slog.Logger

	// sleepFunc waits the inter-request delay. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewFolderBuilder creates a FolderBuilder. delay is slept after each
// conflict resolution to stay clear of the service's rate limits.
func NewFolderBuilder(api FolderAPI, exec *retry.Executor, delay time.Duration, logger *slog.Logger) *FolderBuilder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &FolderBuilder{
		api:       api,
		exec:      exec,
		delay:     delay,
		logger:    logger,
		sleepFunc: retry.Sleep,
	}
}

// Build resolves each relative folder path into cache. Paths are walked
// segment by segment from the root, so a folder is only created once its
// parent's ID is cached. The first unrecoverable error stops the build and
// is returned as *FolderError.
func (b *FolderBuilder) Build(
	ctx context.Context, remote RemoteLocation, folderPaths []string, cache FolderCache, agg *Aggregator,
) error {
	for _, p := range folderPaths {
		if err := b.ensurePath(ctx, remote, p, cache, agg); err != nil {
			return err
		}
	}

	return nil
}

// ensurePath walks one folder path root-down, resolving uncached prefixes.
func (b *FolderBuilder) ensurePath(
	ctx context.Context, remote RemoteLocation, folderPath string, cache FolderCache, agg *Aggregator,
) error {
	folderPath = strings.Trim(folderPath, "/")
	if folderPath == "" {
		return nil
	}

	parentID := cache[""]
	prefix := ""

	for _, seg := range strings.Split(folderPath, "/") {
		prefix = joinRelPath(prefix, seg)

		if id, ok := cache[prefix]; ok {
			parentID = id
			continue
		}

		id, err := b.ensureFolder(ctx, remote.DriveID, parentID, seg, prefix, agg)
		if err != nil {
			agg.FolderFailed()

			return &FolderError{Path: prefix, Err: err}
		}

		cache[prefix] = id
		parentID = id
	}

	return nil
}

// ensureFolder creates name under parentID, falling back to adopting an
// existing folder when the service reports a name conflict.
func (b *FolderBuilder) ensureFolder(
	ctx context.Context, driveID, parentID, name, relPath string, agg *Aggregator,
) (string, error) {
	var created *graph.Item

	err := b.exec.Do(ctx, "create folder "+relPath, func(ctx context.Context) error {
		item, createErr := b.api.CreateFolder(ctx, driveID, parentID, name)
		if createErr != nil {
			return createErr
		}

		created = item

		return nil
	})
	if err == nil {
		b.logger.Info("created remote folder",
			slog.String("rel_path", relPath),
			slog.String("item_id", created.ID),
		)
		agg.FolderCreated()

		return created.ID, nil
	}

	if graph.KindOf(err) != graph.KindConflict {
		b.logger.Error("folder creation failed",
			slog.String("rel_path", relPath),
			slog.String("error", err.Error()),
		)

		return "", err
	}

	b.logger.Info("folder already exists, resolving",
		slog.String("rel_path", relPath),
		slog.String("parent_id", parentID),
	)

	id, err := b.resolveConflict(ctx, driveID, parentID, name, relPath)
	if err != nil {
		return "", err
	}

	agg.FolderReused()

	if sleepErr := b.sleepFunc(ctx, b.delay); sleepErr != nil {
		return "", sleepErr
	}

	return id, nil
}

// resolveConflict looks the existing folder up by name. The service compares
// names case-insensitively, so candidates are narrowed to folders whose name
// matches under NFC and case folding, and ties are broken by an exact match.
// Anything other than a single survivor is an error.
func (b *FolderBuilder) resolveConflict(ctx context.Context, driveID, parentID, name, relPath string) (string, error) {
	var children []graph.Item

	err := b.exec.Do(ctx, "resolve folder "+relPath, func(ctx context.Context) error {
		items, listErr := b.api.ListChildrenByName(ctx, driveID, parentID, name)
		if listErr != nil {
			return listErr
		}

		children = items

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("listing existing folder: %w", err)
	}

	match, err := pickFolder(children, name)
	if err != nil {
		b.logger.Error("cannot resolve folder conflict",
			slog.String("rel_path", relPath),
			slog.Int("candidates", len(children)),
			slog.String("error", err.Error()),
		)

		return "", err
	}

	b.logger.Debug("adopted existing folder",
		slog.String("rel_path", relPath),
		slog.String("item_id", match.ID),
	)

	return match.ID, nil
}

// pickFolder selects the single folder in items named name.
func pickFolder(items []graph.Item, name string) (graph.Item, error) {
	want := norm.NFC.String(name)

	var folded, exact []graph.Item

	for _, it := range items {
		if !it.IsFolder {
			continue
		}

		got := norm.NFC.String(it.Name)
		if !strings.EqualFold(got, want) {
			continue
		}

		folded = append(folded, it)

		if got == want {
			exact = append(exact, it)
		}
	}

	switch {
	case len(folded) == 1:
		return folded[0], nil
	case len(exact) == 1:
		return exact[0], nil
	case len(folded) == 0:
		return graph.Item{}, ErrConflictUnresolved
	default:
		return graph.Item{}, fmt.Errorf("%w: %q (%d candidates)", ErrAmbiguousFolder, name, len(folded))
	}
}
