// File: internal/reporting/artifacts.go
package reporting

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/patch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer persists the run's trace artifacts: the raw model response for
// auditing, the extracted fixes for the apply step, the human-readable
// report, and the raw payload when parsing fails. A run always leaves a
// trace, even when it accomplished nothing.
type Writer struct {
	logger *zap.Logger
	cfg    config.ArtifactsConfig
}

// NewWriter creates an artifact writer.
func NewWriter(logger *zap.Logger, cfg config.ArtifactsConfig) *Writer {
	return &Writer{
		logger: logger.Named("artifacts"),
		cfg:    cfg,
	}
}

// responseEnvelope wraps the raw response text so the audit artifact stays
// a single JSON document.
type responseEnvelope struct {
	Response string `json:"response"`
}

// fixesEnvelope is the machine-readable fix artifact consumed by the apply
// command.
type fixesEnvelope struct {
	Fixes []patch.FileFix `json:"fixes"`
}

// WriteResponse persists the full raw model response for audit.
func (w *Writer) WriteResponse(text string) error {
	return w.writeJSON(w.cfg.ResponsePath, responseEnvelope{Response: text})
}

// WriteFixes persists the accepted fix records for the apply step.
func (w *Writer) WriteFixes(fixes []patch.FileFix) error {
	if fixes == nil {
		fixes = []patch.FileFix{}
	}
	return w.writeJSON(w.cfg.FixesPath, fixesEnvelope{Fixes: fixes})
}

// ReadFixes loads a fix artifact written by WriteFixes. It also accepts a
// bare array of fix records for compatibility with hand-written files.
func (w *Writer) ReadFixes(path string) ([]patch.FileFix, error) {
	if path == "" {
		path = w.cfg.FixesPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixes file %s: %w", path, err)
	}

	var envelope fixesEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Fixes != nil {
		return envelope.Fixes, nil
	}

	var fixes []patch.FileFix
	if err := json.Unmarshal(data, &fixes); err != nil {
		return nil, fmt.Errorf("fixes file %s is not a recognized fix document: %w", path, err)
	}
	return fixes, nil
}

// WriteReport persists the human-readable report view of the response.
func (w *Writer) WriteReport(report string) error {
	if err := os.WriteFile(w.cfg.ReportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", w.cfg.ReportPath, err)
	}
	w.logger.Info("Report written", zap.String("path", w.cfg.ReportPath))
	return nil
}

// WriteRawPayload persists an unparseable proposal payload verbatim for
// manual inspection.
func (w *Writer) WriteRawPayload(payload string) error {
	if err := os.WriteFile(w.cfg.RawPayloadPath, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("failed to write raw payload %s: %w", w.cfg.RawPayloadPath, err)
	}
	w.logger.Warn("Unparseable payload preserved for inspection",
		zap.String("path", w.cfg.RawPayloadPath),
		zap.Int("bytes", len(payload)))
	return nil
}

func (w *Writer) writeJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	w.logger.Info("Artifact written", zap.String("path", path))
	return nil
}
