// Package watch re-runs a sync whenever the local tree changes. Filesystem
// events are debounced so a burst of writes produces one run, and runs never
// overlap.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivemirror/internal/retry"
)

// Watcher error backoff bounds, so a sustained error stream (for example a
// kernel queue overflow) does not spin.
const (
	errInitBackoff = 1 * time.Second
	errMaxBackoff  = 30 * time.Second
)

// ErrWatcherClosed is returned when the underlying watcher stops delivering
// events while the context is still live.
var ErrWatcherClosed = errors.New("watch: filesystem watcher closed")

// FsWatcher is the subset of *fsnotify.Watcher used here. Tests substitute
// a channel-backed fake.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWatcher adapts *fsnotify.Watcher, whose channels are fields, to
// FsWatcher.
type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating filesystem watcher: %w", err)
	}

	return fsnotifyWatcher{w: w}, nil
}

// RunFunc performs one sync run.
type RunFunc func(ctx context.Context) error

// Watcher drives repeated runs over one source tree.
type Watcher struct {
	root     string
	debounce time.Duration
	run      RunFunc
	logger   *slog.Logger

	newWatcher func() (FsWatcher, error)
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// New creates a Watcher for root. debounce is the quiet period after the
// last event before a run starts.
func New(root string, debounce time.Duration, run RunFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Watcher{
		root:       root,
		debounce:   debounce,
		run:        run,
		logger:     logger,
		newWatcher: newFsnotifyWatcher,
		sleepFunc:  retry.Sleep,
	}
}

// Watch performs an initial run, then one run per debounced batch of
// changes, until ctx is canceled. A failed run is logged and watching
// continues. Changes seen while a run is in progress queue exactly one
// follow-up run.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := w.newWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	w.logger.Info("watching for changes",
		slog.String("source_dir", w.root),
		slog.Duration("debounce", w.debounce),
	)

	trigger := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.observe(gctx, fw, trigger) })
	g.Go(func() error { return w.runLoop(gctx, trigger) })

	return g.Wait()
}

// runLoop is the only goroutine that calls run.
func (w *Watcher) runLoop(ctx context.Context, trigger <-chan struct{}) error {
	runs := 0

	for {
		runs++
		w.runOnce(ctx, runs)

		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context, n int) {
	start := time.Now()

	if err := w.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}

		w.logger.Error("sync run failed; still watching",
			slog.Int("run", n),
			slog.String("error", err.Error()),
		)

		return
	}

	w.logger.Info("sync run complete",
		slog.Int("run", n),
		slog.Duration("duration", time.Since(start)),
	)
}

// observe turns raw events into debounced triggers.
func (w *Watcher) observe(ctx context.Context, fw FsWatcher, trigger chan<- struct{}) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	timerActive := false
	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return ErrWatcherClosed
			}

			if !w.relevant(fw, ev) {
				continue
			}

			if !timer.Stop() && timerActive {
				<-timer.C
			}

			timer.Reset(w.debounce)
			timerActive = true
			errBackoff = errInitBackoff

		case err, ok := <-fw.Errors():
			if !ok {
				return ErrWatcherClosed
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", err.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if w.sleepFunc(ctx, errBackoff) != nil {
				return nil
			}

			errBackoff = min(errBackoff*2, errMaxBackoff)

		case <-timer.C:
			timerActive = false

			// Non-blocking: a pending trigger already covers this batch.
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

// relevant reports whether ev should schedule a run. New directories are
// added to the watch set, since fsnotify does not recurse.
func (w *Watcher) relevant(fw FsWatcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	w.logger.Debug("filesystem event",
		slog.String("path", ev.Name),
		slog.String("op", ev.Op.String()),
	)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return true
}

// addTree registers dir and every directory below it. Symlinked directories
// are not followed, matching the scanner.
func (w *Watcher) addTree(fw FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch: reading %s: %w", path, err)
			}

			w.logger.Warn("skipping unreadable directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			return fs.SkipDir
		}

		if !d.IsDir() {
			return nil
		}

		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch: adding %s: %w", path, err)
		}

		return nil
	})
}
