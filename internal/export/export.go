// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter writes a transcript in one format.
type Exporter interface {
	// Export writes t to w.
	Export(t Transcript, w io.Writer) error

	// Extension returns the file extension, including the dot.
	Extension() string
}

// Transcript is one identity's conversation as of ExportedAt.
type Transcript struct {
	Identity   string
	ExportedAt time.Time
	Messages   model.History
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatMarkdown, FormatJSON, FormatYAML}

// ErrUnknownFormat is returned by New for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

// New returns the exporter for format. "md" and "yml" are accepted as
// aliases.
func New(format Format) (Exporter, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatMarkdown, "md":
		return &MarkdownExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatYAML, "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// =============================================================================
// SHARED RECORD
// =============================================================================

// record is the structured form shared by the JSON and YAML exporters.
type record struct {
	Identity   string       `json:"identity" yaml:"identity"`
	ExportedAt string       `json:"exported_at" yaml:"exported_at"`
	Count      int          `json:"message_count" yaml:"message_count"`
	Messages   []recordLine `json:"messages" yaml:"messages"`
}

type recordLine struct {
	Role string `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

func toRecord(t Transcript) record {
	lines := make([]recordLine, 0, len(t.Messages))
	for _, m := range t.Messages {
		lines = append(lines, recordLine{Role: string(m.Role), Text: m.Text})
	}
	return record{
		Identity:   t.Identity,
		ExportedAt: t.ExportedAt.UTC().Format(time.RFC3339),
		Count:      len(t.Messages),
		Messages:   lines,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Filename returns a default file name for t: the sanitized identity and the
// export time, plus ext.
func Filename(t Transcript, ext string) string {
	return fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(t.Identity),
		t.ExportedAt.Format("20060102_150405"),
		ext,
	)
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		'@':  '_',
		' ':  '_',
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		if replacement, found := replacer[r]; found {
			result = append(result, replacement)
		} else if r < 32 || r == 127 {
			result = append(result, '-')
		} else {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}
