// Package mirror copies a local directory tree into a remote drive folder.
//
// A run is strictly sequential: the Scanner enumerates the tree once, the
// FolderBuilder resolves every remote folder (ancestors first), then the
// Uploader sends each file in scan order. All remote calls go through a
// retry.Executor; outcomes are collected by an Aggregator owned by the run.
package mirror

import (
	"context"
	"io"
	"path"

	"github.com/tonimelisma/drivemirror/internal/graph"
)

// EntryKind distinguishes files from directories.
type EntryKind int

const (
	// KindFile is a regular file.
	KindFile EntryKind = iota
	// KindDir is a directory.
	KindDir
)

func (k EntryKind) String() string {
	if k == KindDir {
		return "dir"
	}

	return "file"
}

// Entry is one local file or directory found by the Scanner.
// RelPath is slash-separated, NFC-normalized, and relative to the sync root;
// AbsPath keeps the on-disk spelling for I/O.
type Entry struct {
	Name    string
	AbsPath string
	RelPath string
	Kind    EntryKind
}

// ParentRel returns the relative path of the folder containing the entry,
// "" for entries directly under the sync root.
func (e Entry) ParentRel() string {
	dir := path.Dir(e.RelPath)
	if dir == "." {
		return ""
	}

	return dir
}

// RemoteLocation identifies the destination root folder.
type RemoteLocation struct {
	DriveID  string
	FolderID string
}

// FolderCache maps a relative folder path ("" for the root) to its remote
// item ID. A path is only ever added after all of its ancestors.
type FolderCache map[string]string

// NewFolderCache returns a cache seeded with the remote root.
func NewFolderCache(rootID string) FolderCache {
	return FolderCache{"": rootID}
}

// FolderAPI is the subset of the drive API used to build the folder tree.
type FolderAPI interface {
	CreateFolder(ctx context.Context, driveID, parentID, name string) (*graph.Item, error)
	ListChildrenByName(ctx context.Context, driveID, parentID, name string) ([]graph.Item, error)
}

// ContentAPI is the subset of the drive API used to upload files.
type ContentAPI interface {
	PutContent(ctx context.Context, driveID, parentID, name, contentType string, r io.Reader, size int64) (*graph.Item, error)
}

// DriveAPI is everything a sync run needs from the remote service.
// *graph.Client satisfies it.
type DriveAPI interface {
	FolderAPI
	ContentAPI
}

var _ DriveAPI = (*graph.Client)(nil)
