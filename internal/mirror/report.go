package mirror

import (
	"fmt"
	"slices"
	"time"
)

// Outcome is the terminal result of one file upload.
type Outcome int

const (
	// OutcomeUploaded means the remote copy now matches the local file.
	OutcomeUploaded Outcome = iota
	// OutcomeFailed covers every non-lock failure.
	OutcomeFailed
	// OutcomeLocked means the remote file is checked out or open for editing.
	OutcomeLocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeLocked:
		return "locked"
	default:
		return "failed"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uploaded":
		*o = OutcomeUploaded
	case "locked":
		*o = OutcomeLocked
	case "failed":
		*o = OutcomeFailed
	default:
		return fmt.Errorf("mirror: unknown outcome %q", text)
	}

	return nil
}

// Failure describes one file that was not uploaded.
type Failure struct {
	Path    string  `json:"path"`
	RelPath string  `json:"rel_path"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// Report summarizes a sync run. UploadedPaths hold relative paths and
// FailedPaths absolute local paths, both in processing order. Every scanned
// file appears in exactly one of the two lists.
type Report struct {
	RunID                 string    `json:"run_id"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	UploadedCount         int       `json:"uploaded_count"`
	UploadedPaths         []string  `json:"uploaded_paths"`
	FailedCount           int       `json:"failed_count"`
	FailedPaths           []string  `json:"failed_paths"`
	Failures              []Failure `json:"failures"`
	FoldersCreated        int       `json:"folders_created"`
	FoldersReused         int       `json:"folders_reused"`
	FailedFolderCreations int       `json:"failed_folder_creations"`
	LockedCount           int       `json:"locked_count"`
	Error                 string    `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run finished without any failure.
func (r Report) Succeeded() bool {
	return r.Error == "" && r.FailedCount == 0 && r.FailedFolderCreations == 0
}

// Aggregator accumulates outcomes for one run. It is not safe for
// concurrent use; a run has a single flow of control.
type Aggregator struct {
	report Report
}

// NewAggregator starts an empty report.
func NewAggregator(runID string, startedAt time.Time) *Aggregator {
	return &Aggregator{report: Report{
		RunID:         runID,
		StartedAt:     startedAt,
		UploadedPaths: []string{},
		FailedPaths:   []string{},
		Failures:      []Failure{},
	}}
}

// RecordUploaded records a successful upload.
func (a *Aggregator) RecordUploaded(e Entry) {
	a.report.UploadedCount++
	a.report.UploadedPaths = append(a.report.UploadedPaths, e.RelPath)
}

// RecordFailed records a failed upload. outcome must be OutcomeFailed or
// OutcomeLocked.
func (a *Aggregator) RecordFailed(e Entry, outcome Outcome, reason string) {
	a.report.FailedCount++
	a.report.FailedPaths = append(a.report.FailedPaths, e.AbsPath)
	a.report.Failures = append(a.report.Failures, Failure{
		Path:    e.AbsPath,
		RelPath: e.RelPath,
		Outcome: outcome,
		Reason:  reason,
	})
}

// CountLocked notes one response reporting a locked remote file.
func (a *Aggregator) CountLocked() {
	a.report.LockedCount++
}

// FolderCreated notes a newly created remote folder.
func (a *Aggregator) FolderCreated() {
	a.report.FoldersCreated++
}

// FolderReused notes an existing remote folder adopted after a conflict.
func (a *Aggregator) FolderReused() {
	a.report.FoldersReused++
}

// FolderFailed notes a folder that could not be created or resolved.
func (a *Aggregator) FolderFailed() {
	a.report.FailedFolderCreations++
}

// Finish stamps the end time and the overall error message. A nil err with
// failed files still yields a summary message.
func (a *Aggregator) Finish(at time.Time, err error) {
	a.report.FinishedAt = at

	switch {
	case err != nil:
		a.report.Error = err.Error()
	case a.report.FailedCount > 0:
		a.report.Error = fmt.Sprintf("%d of %d files failed to upload",
			a.report.FailedCount, a.report.FailedCount+a.report.UploadedCount)
	}
}

// Report returns a copy of the accumulated report; later mutations of the
// aggregator do not affect it.
func (a *Aggregator) Report() Report {
	r := a.report
	r.UploadedPaths = slices.Clone(a.report.UploadedPaths)
	r.FailedPaths = slices.Clone(a.report.FailedPaths)
	r.Failures = slices.Clone(a.report.Failures)

	return r
}
