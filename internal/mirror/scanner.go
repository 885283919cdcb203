package mirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NoContentError is returned when the sync root contains nothing at all.
// Empty subdirectories are fine; an empty root almost always means a wrong
// or unmounted source path.
type NoContentError struct {
	Root string
}

func (e *NoContentError) Error() string {
	return fmt.Sprintf("mirror: no content found in %s", e.Root)
}

// ScanOptions filters what the Scanner reports.
type ScanOptions struct {
	SkipDotfiles bool
	Exclude      []string // filepath.Match patterns tested against entry names
}

// ScanResult holds the directories and files of a tree in depth-first
// preorder.
type ScanResult struct {
	Dirs  []Entry
	Files []Entry
}

// FolderPaths returns the relative path of every scanned directory.
func (r *ScanResult) FolderPaths() []string {
	paths := make([]string, 0, len(r.Dirs))
	for _, d := range r.Dirs {
		paths = append(paths, d.RelPath)
	}

	return paths
}

// Scanner enumerates a local tree.
type Scanner struct {
	opts   ScanOptions
	logger *slog.Logger
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ScanOptions, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scanner{opts: opts, logger: logger}
}

// Validate checks the exclude patterns.
func (o ScanOptions) Validate() error {
	for _, p := range o.Exclude {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("mirror: invalid exclude pattern %q: %w", p, err)
		}
	}

	return nil
}

// pending is a worklist item: an entry discovered but not yet visited.
type pending struct {
	name    string // NFC-normalized
	absPath string
	relPath string
	entry   fs.DirEntry
}

// Scan walks root depth-first in preorder, siblings in lexical order, using
// an explicit stack so depth is bounded by memory rather than the call stack.
// Symlinks and special files are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	s.logger.Info("scanner: starting local scan", slog.String("sync_root", root))

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: stating sync root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("mirror: sync root %s is not a directory", root)
	}

	top, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: reading directory %q: %w", root, err)
	}

	if len(top) == 0 {
		return nil, &NoContentError{Root: root}
	}

	result := &ScanResult{}

	var stack []pending
	stack = s.pushChildren(stack, root, "", top)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e := Entry{
			Name:    p.name,
			AbsPath: p.absPath,
			RelPath: p.relPath,
		}

		mode := p.entry.Type()

		switch {
		case mode.IsDir():
			e.Kind = KindDir
			result.Dirs = append(result.Dirs, e)

			children, err := os.ReadDir(p.absPath)
			if err != nil {
				return nil, fmt.Errorf("mirror: reading directory %q: %w", p.absPath, err)
			}

			stack = s.pushChildren(stack, p.absPath, p.relPath, children)

		case mode.IsRegular():
			e.Kind = KindFile
			result.Files = append(result.Files, e)

		default:
			s.logger.Debug("scanner: skipping non-regular entry",
				slog.String("path", p.absPath),
				slog.String("mode", mode.String()),
			)
		}
	}

	s.logger.Info("scanner: local scan complete",
		slog.String("sync_root", root),
		slog.Int("dirs", len(result.Dirs)),
		slog.Int("files", len(result.Files)),
	)

	return result, nil
}

// pushChildren pushes the accepted entries of one directory in reverse so
// they pop in lexical order. os.ReadDir already sorts by name.
func (s *Scanner) pushChildren(stack []pending, absDir, relDir string, entries []fs.DirEntry) []pending {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		name := entry.Name()

		if s.excluded(name) {
			s.logger.Debug("scanner: excluded", slog.String("name", name), slog.String("dir", relDir))
			continue
		}

		normalized := norm.NFC.String(name)

		stack = append(stack, pending{
			name:    normalized,
			absPath: filepath.Join(absDir, name),
			relPath: joinRelPath(relDir, normalized),
			entry:   entry,
		})
	}

	return stack
}

func (s *Scanner) excluded(name string) bool {
	if s.opts.SkipDotfiles && strings.HasPrefix(name, ".") {
		return true
	}

	for _, pattern := range s.opts.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}

	return false
}

// joinRelPath joins a parent relative path and a name with "/".
func joinRelPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
