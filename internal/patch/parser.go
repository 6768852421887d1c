// File: internal/patch/parser.go
package patch

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PayloadFormat identifies which wire shape a proposal payload was produced
// under. The model has historically emitted two: a JSON array of file records,
// and a labeled line-oriented text format.
type PayloadFormat int

const (
	FormatStructured PayloadFormat = iota
	FormatLineOriented
)

func (f PayloadFormat) String() string {
	if f == FormatStructured {
		return "structured"
	}
	return "line-oriented"
}

// ParseError reports a payload that could not be decoded under either wire
// shape. It carries the raw payload verbatim so the caller can persist it
// for manual inspection.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable proposal payload (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser decodes an extracted proposal payload into normalized FileFix
// records.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a payload parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("patch_parser")}
}

// SniffFormat inspects the payload and guesses its wire shape. Pure; never
// touches the payload content beyond leading-character inspection.
func SniffFormat(payload string) PayloadFormat {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return FormatStructured
	}
	return FormatLineOriented
}

// Parse decodes the payload into FileFix records. Records with an empty file
// path, and edits with an empty original snippet, are dropped individually
// rather than failing the batch. A payload that decodes under neither shape
// yields a *ParseError carrying the raw text.
func (p *Parser) Parse(payload string) ([]FileFix, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, nil
	}

	format := SniffFormat(payload)
	p.logger.Debug("Sniffed proposal payload format", zap.Stringer("format", format))

	if format == FormatStructured {
		fixes, err := p.parseStructured(payload)
		if err == nil {
			return p.normalize(fixes), nil
		}
		p.logger.Warn("Structured decode failed, falling back to line-oriented parse", zap.Error(err))
	}

	fixes := p.parseLineOriented(payload)
	if len(fixes) == 0 {
		return nil, &ParseError{Raw: payload, Err: fmt.Errorf("no file records recognized")}
	}
	return p.normalize(fixes), nil
}

// parseStructured decodes the JSON shape: either a bare array of file
// records, or an object wrapping one under a "fixes" key.
func (p *Parser) parseStructured(payload string) ([]FileFix, error) {
	var fixes []FileFix
	if err := json.UnmarshalFromString(payload, &fixes); err == nil {
		return fixes, nil
	}

	var wrapped struct {
		Fixes []FileFix `json:"fixes"`
	}
	if err := json.UnmarshalFromString(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("payload is neither a fix array nor a wrapped fix object: %w", err)
	}
	if wrapped.Fixes == nil {
		return nil, fmt.Errorf("JSON object carries no \"fixes\" key")
	}
	return wrapped.Fixes, nil
}

// parseLineOriented decodes the labeled text shape:
//
//	file: path/to/file.rs
//	---
//	original: |
//	  old code
//	---
//	fixed: |
//	  new code
//	---
//	explanation: |
//	  prose (ignored)
//
// A new "file:" line starts the next record. Repeated original/fixed pairs
// under one file accumulate as ordered edits.
func (p *Parser) parseLineOriented(payload string) []FileFix {
	var (
		fixes   []FileFix
		current *FileFix
		section string
		body    []string
		pending EditRecord
		hasOrig bool
	)

	flushSection := func() {
		if current == nil || section == "" {
			section, body = "", nil
			return
		}
		text := dedent(body)
		switch section {
		case "original":
			pending.Original = text
			hasOrig = true
		case "fixed":
			pending.Fixed = text
			if hasOrig {
				current.Edits = append(current.Edits, pending)
			}
			pending, hasOrig = EditRecord{}, false
		case "explanation":
			// Human prose; not part of the edit.
		}
		section, body = "", nil
	}

	flushRecord := func() {
		flushSection()
		if current != nil {
			fixes = append(fixes, *current)
		}
		current = nil
		// A dangling original (no fixed: section before the record ended)
		// must not pair with the next record's fixed block.
		pending, hasOrig = EditRecord{}, false
	}

	for _, line := range strings.Split(payload, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "file:"):
			flushRecord()
			current = &FileFix{FilePath: strings.TrimSpace(strings.TrimPrefix(trimmed, "file:"))}
		case trimmed == "---":
			flushSection()
		case section == "" && labeledSection(trimmed) != "":
			section = labeledSection(trimmed)
		case section != "":
			body = append(body, line)
		}
	}
	flushRecord()

	return fixes
}

// labeledSection matches the "original: |" / "fixed: |" / "explanation: |"
// header lines, tolerating a missing block scalar indicator.
func labeledSection(line string) string {
	for _, label := range []string{"original", "fixed", "explanation"} {
		rest, ok := strings.CutPrefix(line, label+":")
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" || rest == "|" || rest == "|-" {
			return label
		}
	}
	return ""
}

// dedent strips the common leading whitespace of the non-blank lines and
// trailing blank lines, preserving relative indentation.
func dedent(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	margin := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin < 0 {
		margin = 0
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if len(line) >= margin {
			out[i] = line[margin:]
		} else {
			out[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(out, "\n")
}

// normalize drops records that violate the FileFix and EditRecord
// invariants: empty file paths, and edits with an empty original snippet.
// Each drop is individual, never fatal to the batch.
func (p *Parser) normalize(fixes []FileFix) []FileFix {
	out := make([]FileFix, 0, len(fixes))
	for _, fix := range fixes {
		if strings.TrimSpace(fix.FilePath) == "" {
			p.logger.Warn("Dropping fix record with empty file path",
				zap.Int("edits", len(fix.Edits)))
			continue
		}
		edits := make([]EditRecord, 0, len(fix.Edits))
		for _, e := range fix.Edits {
			if e.Original == "" {
				p.logger.Warn("Dropping edit with empty original snippet",
					zap.String("file", fix.FilePath))
				continue
			}
			edits = append(edits, e)
		}
		if len(edits) == 0 {
			p.logger.Warn("Dropping fix record with no usable edits",
				zap.String("file", fix.FilePath))
			continue
		}
		out = append(out, FileFix{FilePath: fix.FilePath, Edits: edits})
	}
	return out
}
