// File: internal/patch/apply_test.go
package patch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

func newTestApplier(t *testing.T) *Applier {
	t.Helper()
	return NewApplier(zap.NewNop(), config.SafetyConfig{
		MaxChangesPerFile:   10,
		MaxChangePercentage: 20,
	})
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.rs")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApply_SingleEdit(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	path := writeTestFile(t, "let x = 1;\n")

	outcomes := applier.Apply([]FileFix{{
		FilePath: path,
		Edits:    []EditRecord{{Original: "let x = 1;", Fixed: "let x: i32 = 1;"}},
	}})

	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].EditsApplied)
	assert.True(t, outcomes[0].Modified)
	assert.False(t, outcomes[0].Skipped)
	assert.Equal(t, "let x: i32 = 1;\n", readTestFile(t, path))

	summary := Summarize(outcomes)
	assert.Equal(t, 1, summary.FilesModified)
	assert.Equal(t, 1, summary.TotalEditsApplied)
}

func TestApply_FileNotFound(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)

	outcomes := applier.Apply([]FileFix{{
		FilePath: filepath.Join(t.TempDir(), "missing.rs"),
		Edits:    []EditRecord{{Original: "a", Fixed: "b"}},
	}})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, SkipFileNotFound, outcomes[0].SkipReason)
	assert.Zero(t, outcomes[0].EditsApplied)
}

func TestApply_EditCountBudget(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	content := "one two three four five six seven eight nine ten eleven\n"
	path := writeTestFile(t, content)

	// Eleven edits against a budget of ten.
	words := strings.Fields(content)
	edits := make([]EditRecord, len(words))
	for i, w := range words {
		edits[i] = EditRecord{Original: w, Fixed: w}
	}
	require.Len(t, edits, 11)

	outcomes := applier.Apply([]FileFix{{FilePath: path, Edits: edits}})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, SkipTooManyChanges, outcomes[0].SkipReason)
	assert.Zero(t, outcomes[0].EditsApplied)
	// The file must be completely untouched.
	assert.Equal(t, content, readTestFile(t, path))
}

func TestApply_DeltaBudget(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)

	// 100 bytes in, one edit growing it to 130 bytes: a 30% delta of the
	// before size and ~23% of the after size, both over the 20% budget.
	content := strings.Repeat("a", 90) + "MARKER[0]_"
	require.Len(t, content, 100)
	path := writeTestFile(t, content)

	outcomes := applier.Apply([]FileFix{{
		FilePath: path,
		Edits:    []EditRecord{{Original: "MARKER[0]_", Fixed: "MARKER[0]_" + strings.Repeat("b", 30)}},
	}})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, SkipDeltaTooLarge, outcomes[0].SkipReason)
	assert.Zero(t, outcomes[0].EditsApplied)
	assert.Equal(t, outcomes[0].BytesBefore, outcomes[0].BytesAfter)
	assert.Equal(t, content, readTestFile(t, path))
}

func TestApply_PartialMatchTolerance(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	path := writeTestFile(t, "alpha\nbeta\ngamma\n")

	outcomes := applier.Apply([]FileFix{{
		FilePath: path,
		Edits: []EditRecord{
			{Original: "alpha", Fixed: "ALPHA"},
			{Original: "absent snippet", Fixed: "whatever"},
			{Original: "gamma", Fixed: "GAMMA"},
		},
	}})

	require.Len(t, outcomes, 1)
	assert.Equal(t, 3, outcomes[0].EditsAttempted)
	assert.Equal(t, 2, outcomes[0].EditsApplied)
	assert.False(t, outcomes[0].Skipped)
	assert.Equal(t, "ALPHA\nbeta\nGAMMA\n", readTestFile(t, path))
}

func TestApply_Idempotence(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	path := writeTestFile(t, "let x = 1;\n")

	fix := FileFix{
		FilePath: path,
		Edits:    []EditRecord{{Original: "let x = 1;", Fixed: "let x: i32 = 1;"}},
	}

	first := applier.Apply([]FileFix{fix})
	require.Equal(t, 1, first[0].EditsApplied)
	patchedInfo, err := os.Stat(path)
	require.NoError(t, err)

	// Second run: the original snippet is gone, so nothing applies and no
	// write happens.
	second := applier.Apply([]FileFix{fix})
	require.Len(t, second, 1)
	assert.Zero(t, second[0].EditsApplied)
	assert.False(t, second[0].Modified)
	assert.Equal(t, "let x: i32 = 1;\n", readTestFile(t, path))

	unchangedInfo, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, patchedInfo.ModTime(), unchangedInfo.ModTime())
}

func TestApply_ReplacesAllOccurrences(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	path := writeTestFile(t, "foo(); bar(); foo();\n")

	outcomes := applier.Apply([]FileFix{{
		FilePath: path,
		Edits:    []EditRecord{{Original: "foo()", Fixed: "baz()"}},
	}})

	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].EditsApplied)
	// Every occurrence is replaced, not just the first.
	assert.Equal(t, "baz(); bar(); baz();\n", readTestFile(t, path))
}

func TestApply_EarlierEditsVisibleToLaterOnes(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	path := writeTestFile(t, "start middle end\n")

	outcomes := applier.Apply([]FileFix{{
		FilePath: path,
		Edits: []EditRecord{
			{Original: "middle", Fixed: "core"},
			// Matches only against the already-edited content.
			{Original: "start core", Fixed: "start kernel"},
		},
	}})

	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].EditsApplied)
	assert.Equal(t, "start kernel end\n", readTestFile(t, path))
}

func TestApply_MultipleFilesOneSkipDoesNotAbortBatch(t *testing.T) {
	t.Parallel()
	applier := newTestApplier(t)
	good := writeTestFile(t, "keep = false\n")
	missing := filepath.Join(t.TempDir(), "gone.rs")

	outcomes := applier.Apply([]FileFix{
		{FilePath: missing, Edits: []EditRecord{{Original: "x", Fixed: "y"}}},
		{FilePath: good, Edits: []EditRecord{{Original: "false", Fixed: "true"}}},
	})

	require.Len(t, outcomes, 2)
	assert.Equal(t, SkipFileNotFound, outcomes[0].SkipReason)
	assert.Equal(t, 1, outcomes[1].EditsApplied)
	assert.Equal(t, "keep = true\n", readTestFile(t, good))

	summary := Summarize(outcomes)
	assert.Equal(t, 1, summary.FilesModified)
	assert.Equal(t, 1, summary.TotalEditsApplied)
}
