// -- cmd/cmd_test.go --
package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs a fresh root command with captured stdout, the way main does.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

const analysisResponse = `## Findings

The variable binding should carry an explicit type.

<FIXES>
[{"file": "main.rs", "changes": [{"original": "let x = 1;", "fixed": "let x: i32 = 1;"}]}]
</FIXES>

Nothing else stood out.
`

func newAnalysisServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"content":[{"type":"text","text":` + jsonQuote(body) + `}]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func jsonQuote(s string) string {
	b, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	return string(b)
}

func TestAnalyzeCommand_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	server := newAnalysisServer(t, http.StatusOK, analysisResponse)
	t.Setenv("SUTURE_API_KEY", "test-key")
	t.Setenv("SUTURE_LLM_ENDPOINT", server.URL)

	require.NoError(t, os.WriteFile("main.rs", []byte("let x = 1;\n"), 0o644))

	out, err := execute(t, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "fixes_available=true")

	// The run leaves its full trace behind.
	response, err := os.ReadFile("claude_response.json")
	require.NoError(t, err)
	assert.Contains(t, string(response), "explicit type")

	report, err := os.ReadFile("claude_analysis_report.md")
	require.NoError(t, err)
	assert.Contains(t, string(report), "## Findings")
	assert.NotContains(t, string(report), "<FIXES>")

	fixes, err := os.ReadFile("claude_fixes.json")
	require.NoError(t, err)
	assert.Contains(t, string(fixes), "let x: i32 = 1;")

	// Chain directly into apply against the artifact just written.
	out, err = execute(t, "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "changes_applied=true")

	patched, err := os.ReadFile("main.rs")
	require.NoError(t, err)
	assert.Equal(t, "let x: i32 = 1;\n", string(patched))
}

func TestAnalyzeCommand_NoProposalsIsNotAnError(t *testing.T) {
	t.Chdir(t.TempDir())
	server := newAnalysisServer(t, http.StatusOK, "All clear, nothing to fix.")
	t.Setenv("SUTURE_API_KEY", "test-key")
	t.Setenv("SUTURE_LLM_ENDPOINT", server.URL)

	out, err := execute(t, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "fixes_available=false")

	// The empty outcome still leaves the fixes artifact.
	_, err = os.Stat("claude_fixes.json")
	assert.NoError(t, err)
}

func TestAnalyzeCommand_MissingCredentialIsFatal(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SUTURE_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")

	out, err := execute(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUTURE_API_KEY")
	// Fatal outcomes still print the unavailable signal for the orchestrator.
	assert.Contains(t, out, "fixes_available=false")
}

func TestAnalyzeCommand_NonRetryableStatusIsFatal(t *testing.T) {
	t.Chdir(t.TempDir())
	server := newAnalysisServer(t, http.StatusUnauthorized, "")
	t.Setenv("SUTURE_API_KEY", "bad-key")
	t.Setenv("SUTURE_LLM_ENDPOINT", server.URL)

	out, err := execute(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, out, "fixes_available=false")
}

func TestApplyCommand_NoChanges(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("fixes.json",
		[]byte(`{"fixes": []}`), 0o644))

	out, err := execute(t, "apply", "fixes.json")
	require.NoError(t, err)
	assert.Contains(t, out, "changes_applied=false")
}

func TestApplyCommand_MissingFixesFileIsFatal(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "apply", "does-not-exist.json")
	require.Error(t, err)
	assert.Contains(t, out, "changes_applied=false")
}
