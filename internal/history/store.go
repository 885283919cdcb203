// Package history records a ledger of sync runs in a local SQLite database
// so operators can see what past runs uploaded and which files failed.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/drivemirror/internal/mirror"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dirPerms is used when creating the database directory.
const dirPerms = 0o700

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("history: run not found")

// Run is one recorded sync run: where it went and how it ended.
type Run struct {
	SourceDir string
	DriveID   string
	FolderID  string
	Report    mirror.Report
}

// Store persists runs. It is safe for concurrent use; SQLite serializes
// writers through the single pooled connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at dbPath and
// applies pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// migrate brings the schema up to date with the goose Provider API.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied history migration",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}

	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const sqlInsertRun = `INSERT INTO runs (
	run_id, started_at, finished_at, source_dir, drive_id, folder_id,
	uploaded_count, failed_count, folders_created, folders_reused,
	failed_folder_creations, locked_count, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqlInsertFailure = `INSERT INTO run_failures (run_id, seq, rel_path, path, outcome, reason)
VALUES (?, ?, ?, ?, ?, ?)`

// Record stores a run and its per-file failures in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	r := run.Report

	_, err = tx.ExecContext(ctx, sqlInsertRun,
		r.RunID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(),
		run.SourceDir, run.DriveID, run.FolderID,
		r.UploadedCount, r.FailedCount, r.FoldersCreated, r.FoldersReused,
		r.FailedFolderCreations, r.LockedCount, r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: inserting run %s: %w", r.RunID, err)
	}

	for i, f := range r.Failures {
		if _, err := tx.ExecContext(ctx, sqlInsertFailure,
			r.RunID, i, f.RelPath, f.Path, f.Outcome.String(), f.Reason,
		); err != nil {
			return fmt.Errorf("history: inserting failure for %s: %w", f.RelPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: committing run %s: %w", r.RunID, err)
	}

	s.logger.Debug("recorded run",
		slog.String("run_id", r.RunID),
		slog.Int("failures", len(r.Failures)),
	)

	return nil
}

const sqlSelectRuns = `SELECT run_id, started_at, finished_at, source_dir, drive_id, folder_id,
	uploaded_count, failed_count, folders_created, folders_reused,
	failed_folder_creations, locked_count, error
FROM runs`

// List returns up to limit runs, newest first. Failure details are not
// loaded; use Get for one run's failures.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlSelectRuns+" ORDER BY started_at DESC, run_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating runs: %w", err)
	}

	return runs, nil
}

// Get returns one run with its failures.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, sqlSelectRuns+" WHERE run_id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_path, path, outcome, reason FROM run_failures WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return Run{}, fmt.Errorf("history: loading failures for %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f       mirror.Failure
			outcome string
		)

		if err := rows.Scan(&f.RelPath, &f.Path, &outcome, &f.Reason); err != nil {
			return Run{}, fmt.Errorf("history: scanning failure: %w", err)
		}

		if err := f.Outcome.UnmarshalText([]byte(outcome)); err != nil {
			return Run{}, err
		}

		run.Report.Failures = append(run.Report.Failures, f)
		run.Report.FailedPaths = append(run.Report.FailedPaths, f.Path)
	}

	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("history: iterating failures: %w", err)
	}

	return run, nil
}

// Prune deletes all but the newest keep runs and returns how many were
// removed. Failures go with their run through the foreign key cascade.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY started_at DESC, run_id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("history: pruning runs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: pruning runs: %w", err)
	}

	if n > 0 {
		s.logger.Info("pruned run history", slog.Int64("removed", n), slog.Int("kept", keep))
	}

	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run             Run
		started, finish int64
	)

	r := &run.Report

	err := row.Scan(&r.RunID, &started, &finish, &run.SourceDir, &run.DriveID, &run.FolderID,
		&r.UploadedCount, &r.FailedCount, &r.FoldersCreated, &r.FoldersReused,
		&r.FailedFolderCreations, &r.LockedCount, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}

	if err != nil {
		return Run{}, fmt.Errorf("history: scanning run: %w", err)
	}

	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finish).UTC()

	return run, nil
}
