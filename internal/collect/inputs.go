// File: internal/collect/inputs.go
package collect

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collector gathers the analysis inputs: lint output, audit output, project
// metadata, the manifest, and source samples. Every input is optional and
// degrades to empty.
type Collector struct {
	logger *zap.Logger
	cfg    config.CollectConfig
}

// NewCollector creates an input collector.
func NewCollector(logger *zap.Logger, cfg config.CollectConfig) *Collector {
	return &Collector{
		logger: logger.Named("collector"),
		cfg:    cfg,
	}
}

// Inputs is everything the prompt builder needs, already formatted.
type Inputs struct {
	ProjectInfo string
	Manifest    string
	Lint        string
	Audit       string
	FileSamples string
}

// Gather reads and formats all analysis inputs. changedFiles narrows the
// source sampling; pass nil to sample the whole tree.
func (c *Collector) Gather(changedFiles []string) Inputs {
	return Inputs{
		ProjectInfo: c.ReadFileIfExists(c.cfg.ProjectInfoPath),
		Manifest:    c.ReadFileIfExists(c.cfg.ManifestPath),
		Lint:        c.FormatLintOutput(c.ReadFileIfExists(c.cfg.LintResultsPath)),
		Audit:       c.FormatAuditOutput(c.ReadFileIfExists(c.cfg.AuditResultsPath)),
		FileSamples: c.SampleFiles(changedFiles),
	}
}

// ReadFileIfExists returns the file's content, or "" with a warning when it
// is missing or unreadable. Absent inputs are a normal condition in CI.
func (c *Collector) ReadFileIfExists(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("Could not read input file, treating as empty",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	return string(data)
}

// -- Lint formatting --

type lintMessage struct {
	Level    string `json:"level"`
	Rendered string `json:"rendered"`
}

type lintLine struct {
	Reason  string       `json:"reason"`
	Message *lintMessage `json:"message"`
}

// FormatLintOutput turns JSON-lines compiler output into the rendered
// diagnostic blocks. Only warning/error compiler messages with a rendered
// form are kept; malformed lines are skipped silently.
func (c *Collector) FormatLintOutput(raw string) string {
	var rendered []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry lintLine
		if err := json.UnmarshalFromString(line, &entry); err != nil {
			continue
		}
		if entry.Reason != "compiler-message" || entry.Message == nil {
			continue
		}
		if entry.Message.Level != "warning" && entry.Message.Level != "error" {
			continue
		}
		if entry.Message.Rendered == "" {
			continue
		}
		rendered = append(rendered, entry.Message.Rendered)
	}

	if len(rendered) == 0 {
		return "No lint issues found."
	}
	return strings.Join(rendered, "\n\n")
}

// -- Audit formatting --

type auditReport struct {
	Vulnerabilities struct {
		Found bool `json:"found"`
		List  []struct {
			Package struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"package"`
			Advisory struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				URL      string `json:"url"`
				Severity string `json:"severity"`
			} `json:"advisory"`
		} `json:"list"`
	} `json:"vulnerabilities"`
}

// FormatAuditOutput renders a dependency-audit JSON document as markdown.
// Decode failures produce a diagnostic string with a truncated prefix of
// the raw input; they never fail the run.
func (c *Collector) FormatAuditOutput(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "No security vulnerabilities found."
	}

	var report auditReport
	if err := json.UnmarshalFromString(raw, &report); err != nil {
		c.logger.Warn("Audit output is not valid JSON", zap.Error(err))
		return fmt.Sprintf("Error parsing audit output as JSON: %s", truncate(raw, 500))
	}
	if !report.Vulnerabilities.Found {
		return "No security vulnerabilities found."
	}

	var b strings.Builder
	b.WriteString("# Security Vulnerabilities\n")
	for _, vuln := range report.Vulnerabilities.List {
		fmt.Fprintf(&b, "\n## %s - %s\n", orUnknown(vuln.Package.Name), orUnknown(vuln.Advisory.ID))
		fmt.Fprintf(&b, "- **Version**: %s\n", orUnknown(vuln.Package.Version))
		fmt.Fprintf(&b, "- **Title**: %s\n", orUnknown(vuln.Advisory.Title))
		fmt.Fprintf(&b, "- **URL**: %s\n", orUnknown(vuln.Advisory.URL))
		fmt.Fprintf(&b, "- **Severity**: %s\n", orUnknown(vuln.Advisory.Severity))
	}
	return b.String()
}

// -- Source sampling --

// SampleFiles collects fenced source excerpts for prompt context, bounded
// by the configured file and byte caps. When no changed files are supplied
// it walks the tree, preferring entry-point files and then smaller files.
func (c *Collector) SampleFiles(files []string) string {
	if len(files) == 0 {
		files = c.discoverSourceFiles()
	}

	var (
		samples   []string
		totalSize int64
	)
	for _, path := range files {
		if len(samples) >= c.cfg.MaxSampleFiles || totalSize >= c.cfg.MaxSampleBytes {
			break
		}
		if !strings.HasSuffix(path, c.cfg.SourceExtension) {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			c.logger.Warn("Could not stat sample candidate", zap.String("path", path), zap.Error(err))
			continue
		}
		// Very large files crowd out everything else.
		if info.Size() > c.cfg.MaxSampleBytes/2 {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("Could not read sample candidate", zap.String("path", path), zap.Error(err))
			continue
		}
		if len(content) == 0 {
			continue
		}

		lang := strings.TrimPrefix(c.cfg.SourceExtension, ".")
		samples = append(samples, fmt.Sprintf("### File: %s\n```%s\n%s\n```\n", path, lang, content))
		totalSize += info.Size()
	}

	return strings.Join(samples, "\n\n")
}

// discoverSourceFiles walks the working tree for source files, excluding
// the build output directory. Entry points (main/lib) sort first, the rest
// smallest first so more distinct files fit under the byte cap.
func (c *Collector) discoverSourceFiles() []string {
	type candidate struct {
		path string
		size int64
		main bool
	}
	var candidates []candidate

	entryNames := map[string]bool{
		"main" + c.cfg.SourceExtension: true,
		"lib" + c.cfg.SourceExtension:  true,
	}

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == c.cfg.ExcludeDir || strings.HasPrefix(d.Name(), ".") && path != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, c.cfg.SourceExtension) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidates = append(candidates, candidate{
			path: path,
			size: info.Size(),
			main: entryNames[d.Name()],
		})
		return nil
	})
	if err != nil {
		c.logger.Warn("Source tree walk failed", zap.Error(err))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].main != candidates[j].main {
			return candidates[i].main
		}
		return candidates[i].size < candidates[j].size
	})

	paths := make([]string, len(candidates))
	for i, cand := range candidates {
		paths[i] = cand.path
	}
	return paths
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
