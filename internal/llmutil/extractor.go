// File: internal/llmutil/extractor.go
package llmutil

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// The model is instructed to wrap its machine-readable edit proposals in a
// single tagged region. Everything outside the region is prose for humans.
const (
	OpenMarker  = "<FIXES>"
	CloseMarker = "</FIXES>"
)

// proposalRegex matches one tagged region non-greedily, so the first opening
// marker pairs with the first subsequent closing marker.
var proposalRegex = regexp.MustCompile(`(?s)<FIXES>\s*(.*?)\s*</FIXES>`)

// Extractor isolates the proposal payload from a free-form model response.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a proposal extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// ExtractProposal returns the payload of the first tagged region. The second
// return is false when the response carries no proposals: either no opening
// marker at all (a normal outcome) or an opening marker that is never closed
// (malformed; logged, never partially extracted).
func (e *Extractor) ExtractProposal(response string) (string, bool) {
	open := strings.Index(response, OpenMarker)
	if open < 0 {
		e.logger.Debug("Response carries no proposal markers")
		return "", false
	}

	match := proposalRegex.FindStringSubmatch(response[open:])
	if match == nil {
		e.logger.Warn("Opening proposal marker without a closing marker, discarding region",
			zap.Int("marker_offset", open))
		return "", false
	}

	if strings.Count(response, OpenMarker) > 1 {
		// Convention is one region per response; tolerate extras by taking
		// the first and leaving the rest to the report view.
		e.logger.Warn("Multiple proposal regions in response, using the first")
	}

	return match[1], true
}

// StripProposal returns the report view of the response: the same text with
// every well-formed tagged region removed, for human consumption. A dangling
// opening marker truncates the report at the marker rather than leaking a
// half-open machine block into the report.
func (e *Extractor) StripProposal(response string) string {
	report := proposalRegex.ReplaceAllString(response, "")
	if open := strings.Index(report, OpenMarker); open >= 0 {
		report = report[:open]
	}
	return strings.TrimSpace(report) + "\n"
}
