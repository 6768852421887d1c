// File: internal/patch/apply.go
package patch

import (
	"fmt"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

// Applier performs admission-controlled, sequential substring replacement on
// the files named by a set of FileFix records. It never touches files that
// are not named in its input.
type Applier struct {
	logger *zap.Logger
	cfg    config.SafetyConfig
}

// NewApplier creates a patch applier with the given safety budgets.
func NewApplier(logger *zap.Logger, cfg config.SafetyConfig) *Applier {
	return &Applier{
		logger: logger.Named("patch_applier"),
		cfg:    cfg,
	}
}

// Apply processes the fixes in input order, one file at a time, and returns
// a per-file outcome for each. A safety violation on one file never aborts
// the batch.
func (a *Applier) Apply(fixes []FileFix) []ApplyOutcome {
	outcomes := make([]ApplyOutcome, 0, len(fixes))
	for _, fix := range fixes {
		outcomes = append(outcomes, a.applyOne(fix))
	}
	return outcomes
}

// applyOne runs the full admission pipeline for a single file: existence
// check, edit-count budget, sequential replacement, and the blast-radius
// budget over the tentative result. The file is rewritten only when at
// least one edit applied and the content actually changed.
func (a *Applier) applyOne(fix FileFix) ApplyOutcome {
	outcome := ApplyOutcome{FilePath: fix.FilePath}

	info, err := os.Stat(fix.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		a.logger.Warn("Skipping fix: file does not exist or is not a regular file",
			zap.String("file", fix.FilePath))
		outcome.Skipped = true
		outcome.SkipReason = SkipFileNotFound
		return outcome
	}

	if len(fix.Edits) > a.cfg.MaxChangesPerFile {
		a.logger.Warn("Skipping fix: edit count exceeds per-file budget",
			zap.String("file", fix.FilePath),
			zap.Int("edits", len(fix.Edits)),
			zap.Int("budget", a.cfg.MaxChangesPerFile))
		outcome.Skipped = true
		outcome.SkipReason = SkipTooManyChanges
		return outcome
	}

	raw, err := os.ReadFile(fix.FilePath)
	if err != nil {
		a.logger.Warn("Skipping fix: file became unreadable",
			zap.String("file", fix.FilePath), zap.Error(err))
		outcome.Skipped = true
		outcome.SkipReason = SkipFileNotFound
		return outcome
	}

	before := string(raw)
	outcome.BytesBefore = len(before)

	// Each edit matches against the current content, so earlier edits in
	// the same file are visible to later ones. A missing snippet skips
	// that single edit only.
	content := before
	for _, edit := range fix.Edits {
		outcome.EditsAttempted++
		if !strings.Contains(content, edit.Original) {
			a.logger.Info("Edit snippet not found in current content, skipping edit",
				zap.String("file", fix.FilePath),
				zap.String("snippet", truncate(edit.Original, 80)))
			continue
		}
		// All occurrences are replaced, not just the first. Original
		// snippets must be unique enough in the file; short or common
		// snippets are a known sharp edge.
		content = strings.ReplaceAll(content, edit.Original, edit.Fixed)
		outcome.EditsApplied++
	}
	outcome.BytesAfter = len(content)

	if reason := a.checkDelta(len(before), len(content)); reason != SkipNone {
		a.logger.Warn("Discarding all edits: size delta exceeds blast-radius budget",
			zap.String("file", fix.FilePath),
			zap.Int("bytes_before", len(before)),
			zap.Int("bytes_after", len(content)),
			zap.Float64("budget_pct", a.cfg.MaxChangePercentage))
		outcome.EditsApplied = 0
		outcome.BytesAfter = outcome.BytesBefore
		outcome.Skipped = true
		outcome.SkipReason = reason
		return outcome
	}

	if outcome.EditsApplied == 0 || content == before {
		// Nothing to write. Re-running apply on an already-patched file
		// lands here, which keeps the operation idempotent.
		a.logger.Info("No effective changes for file, not writing",
			zap.String("file", fix.FilePath),
			zap.Int("edits_attempted", outcome.EditsAttempted))
		return outcome
	}

	if err := os.WriteFile(fix.FilePath, []byte(content), info.Mode().Perm()); err != nil {
		a.logger.Error("Failed to write patched file",
			zap.String("file", fix.FilePath), zap.Error(err))
		outcome.EditsApplied = 0
		outcome.BytesAfter = outcome.BytesBefore
		outcome.Skipped = true
		outcome.SkipReason = SkipWriteFailed
		return outcome
	}

	outcome.Modified = true
	a.logger.Info("Patched file written",
		zap.String("file", fix.FilePath),
		zap.Int("edits_applied", outcome.EditsApplied),
		zap.Int("bytes_before", outcome.BytesBefore),
		zap.Int("bytes_after", outcome.BytesAfter))
	return outcome
}

// checkDelta enforces the blast-radius budget: the absolute size change as a
// percentage of the post-edit size must not exceed the configured cap.
func (a *Applier) checkDelta(before, after int) SkipReason {
	if after == before {
		return SkipNone
	}
	if after == 0 {
		// Edits emptied the file entirely; always over budget.
		return SkipDeltaTooLarge
	}
	pct := math.Abs(float64(after)-float64(before)) / float64(after) * 100
	if pct > a.cfg.MaxChangePercentage {
		return SkipDeltaTooLarge
	}
	return SkipNone
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:max], len(s))
}
