// File: internal/patch/models.go
package patch

// EditRecord is one literal original -> fixed text substitution. The original
// snippet must be non-empty; an empty fixed string is a deletion.
type EditRecord struct {
	Original string `json:"original"`
	Fixed    string `json:"fixed"`
}

// FileFix groups the ordered edits proposed for a single file. The path is
// validated at apply time, not at parse time: the file set may have changed
// between analysis and application.
type FileFix struct {
	FilePath string       `json:"file"`
	Edits    []EditRecord `json:"changes"`
}

// SkipReason classifies why a file's edits were rejected wholesale.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipFileNotFound   SkipReason = "FILE_NOT_FOUND"
	SkipTooManyChanges SkipReason = "TOO_MANY_CHANGES"
	SkipDeltaTooLarge  SkipReason = "DELTA_TOO_LARGE"
	SkipWriteFailed    SkipReason = "WRITE_FAILED"
)

// ApplyOutcome reports what happened to one file during application.
type ApplyOutcome struct {
	FilePath       string     `json:"file"`
	EditsAttempted int        `json:"edits_attempted"`
	EditsApplied   int        `json:"edits_applied"`
	BytesBefore    int        `json:"bytes_before"`
	BytesAfter     int        `json:"bytes_after"`
	// Modified is true only when the file was actually rewritten.
	Modified   bool       `json:"modified"`
	Skipped    bool       `json:"skipped"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`
}

// Summary aggregates the per-file outcomes for a whole run.
type Summary struct {
	FilesModified     int `json:"files_modified"`
	TotalEditsApplied int `json:"total_edits_applied"`
}

// Summarize folds a list of outcomes into the run-level totals.
func Summarize(outcomes []ApplyOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Modified {
			s.FilesModified++
		}
		s.TotalEditsApplied += o.EditsApplied
	}
	return s
}
