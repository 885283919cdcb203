package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/drivemirror/internal/history"
	"github.com/tonimelisma/drivemirror/internal/mirror"
)

// writeJSON encodes v indented.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printReport writes a run report as text or JSON.
func printReport(w io.Writer, r mirror.Report, asJSON bool) error {
	if asJSON {
		return writeJSON(w, r)
	}

	fmt.Fprintf(w, "Run %s finished in %s\n", r.RunID, formatDuration(r.Duration()))

	printTable(w, []string{"RESULT", "COUNT"}, [][]string{
		{"uploaded", strconv.Itoa(r.UploadedCount)},
		{"failed", strconv.Itoa(r.FailedCount)},
		{"locked", strconv.Itoa(r.LockedCount)},
		{"folders created", strconv.Itoa(r.FoldersCreated)},
		{"folders reused", strconv.Itoa(r.FoldersReused)},
		{"folder failures", strconv.Itoa(r.FailedFolderCreations)},
	})

	printFailures(w, r.Failures)

	if r.Error != "" {
		fmt.Fprintf(w, "\n%s\n", r.Error)
	}

	return nil
}

func printFailures(w io.Writer, failures []mirror.Failure) {
	if len(failures) == 0 {
		return
	}

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.RelPath, f.Outcome.String(), oneLine(f.Reason)})
	}

	fmt.Fprintln(w)
	printTable(w, []string{"FAILED FILE", "OUTCOME", "REASON"}, rows)
}

// planJSON is the --json form of a dry-run plan.
type planJSON struct {
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

// printPlan writes the folders and files a run would handle.
func printPlan(w io.Writer, p *mirror.Plan, asJSON bool) error {
	if asJSON {
		return writeJSON(w, planJSON{Folders: p.Folders, Files: p.Files})
	}

	fmt.Fprintf(w, "Folders to ensure (%d):\n", len(p.Folders))

	for _, f := range p.Folders {
		fmt.Fprintf(w, "  %s/\n", f)
	}

	fmt.Fprintf(w, "Files to upload (%d):\n", len(p.Files))

	for _, f := range p.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}

	return nil
}

// historyRunJSON is the --json form of a recorded run.
type historyRunJSON struct {
	SourceDir string        `json:"source_dir"`
	DriveID   string        `json:"drive_id"`
	FolderID  string        `json:"folder_id"`
	Report    mirror.Report `json:"report"`
}

func toHistoryJSON(run history.Run) historyRunJSON {
	return historyRunJSON{
		SourceDir: run.SourceDir,
		DriveID:   run.DriveID,
		FolderID:  run.FolderID,
		Report:    run.Report,
	}
}

// printHistoryList writes recorded runs as a table or JSON array.
func printHistoryList(w io.Writer, runs []history.Run, asJSON bool) error {
	if asJSON {
		out := make([]historyRunJSON, 0, len(runs))
		for _, r := range runs {
			out = append(out, toHistoryJSON(r))
		}

		return writeJSON(w, out)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		r := run.Report
		rows = append(rows, []string{
			r.RunID,
			formatTime(r.StartedAt),
			formatDuration(r.Duration()),
			strconv.Itoa(r.UploadedCount),
			strconv.Itoa(r.FailedCount),
			run.SourceDir,
		})
	}

	printTable(w, []string{"RUN ID", "STARTED", "DURATION", "UPLOADED", "FAILED", "SOURCE"}, rows)

	return nil
}

// printHistoryRun writes one recorded run with its failures.
func printHistoryRun(w io.Writer, run history.Run, asJSON bool) error {
	if asJSON {
		return writeJSON(w, toHistoryJSON(run))
	}

	fmt.Fprintf(w, "Source:      %s\n", run.SourceDir)
	fmt.Fprintf(w, "Destination: drive %s, folder %s\n", run.DriveID, run.FolderID)
	fmt.Fprintf(w, "Started:     %s\n", run.Report.StartedAt.Local().Format(time.RFC3339))

	return printReport(w, run.Report, false)
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// formatDuration rounds to a readable precision.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	return d.Round(100 * time.Millisecond).String()
}

// oneLine collapses multi-line reasons so table rows stay aligned.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// printTable writes aligned columns. headers and each row must have the
// same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
