package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/tonimelisma/drivemirror/internal/config"
)

const (
	lockFilePermissions = 0o644
	lockDirPermissions  = 0o755
)

// errRunLocked is returned when another process is mirroring into the same
// destination folder.
var errRunLocked = errors.New("another drivemirror run is already writing to this destination")

// runLockPath returns the lock file for a destination folder. Two runs with
// different sources but the same destination share a lock, since they would
// race on folder creation.
func runLockPath(remote config.RemoteConfig) string {
	sum := sha256.Sum256([]byte(remote.DriveID + "\x00" + remote.FolderID))

	return filepath.Join(config.DefaultDataDir(), "locks", hex.EncodeToString(sum[:8])+".lock")
}

// acquireRunLock takes an exclusive, non-blocking flock on path and writes
// the current PID into it. The returned release func drops the lock and
// removes the file.
func acquireRunLock(path string) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s)", errRunLocked, path)
		}

		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}
