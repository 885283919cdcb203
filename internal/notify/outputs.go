package notify

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivemirror/internal/mirror"
)

// Output keys written to the workflow outputs file.
const (
	KeyUploadedCount         = "uploaded_count"
	KeyUploadedPaths         = "uploaded_paths"
	KeyFailedCount           = "failed_count"
	KeyFailedPaths           = "failed_paths"
	KeyFailedFolderCreations = "failed_folder_creations"
	KeyLockedCount           = "locked_count"
	KeyErrorMessage          = "error_message"
)

const outputsFilePerms = 0o644

// WriteOutputs renders report as workflow outputs onto w. Scalars use
// key=value; path lists and the error message use the multi-line
// key<<DELIM form with one path per line.
func WriteOutputs(w io.Writer, report mirror.Report) error {
	var b strings.Builder

	writeScalar(&b, KeyUploadedCount, strconv.Itoa(report.UploadedCount))
	writeMultiline(&b, KeyUploadedPaths, report.UploadedPaths)
	writeScalar(&b, KeyFailedCount, strconv.Itoa(report.FailedCount))
	writeMultiline(&b, KeyFailedPaths, report.FailedPaths)
	writeScalar(&b, KeyFailedFolderCreations, strconv.Itoa(report.FailedFolderCreations))
	writeScalar(&b, KeyLockedCount, strconv.Itoa(report.LockedCount))

	if strings.ContainsAny(report.Error, "\r\n") {
		writeMultiline(&b, KeyErrorMessage, []string{report.Error})
	} else {
		writeScalar(&b, KeyErrorMessage, report.Error)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("notify: writing outputs: %w", err)
	}

	return nil
}

// AppendOutputs appends the report outputs to the file at path, creating it
// if needed. The workflow runner owns the file, so it is never truncated.
func AppendOutputs(path string, report mirror.Report) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, outputsFilePerms)
	if err != nil {
		return fmt.Errorf("notify: opening outputs file %s: %w", path, err)
	}

	if err := WriteOutputs(f, report); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("notify: closing outputs file %s: %w", path, err)
	}

	return nil
}

func writeScalar(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s=%s\n", key, value)
}

// writeMultiline uses a random delimiter so no value line can end the block
// early.
func writeMultiline(b *strings.Builder, key string, lines []string) {
	delim := "ghadelimiter_" + uuid.NewString()

	fmt.Fprintf(b, "%s<<%s\n", key, delim)

	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString(delim)
	b.WriteByte('\n')
}
