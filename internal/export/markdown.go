// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes transcripts as Markdown with YAML frontmatter.
type MarkdownExporter struct{}

type frontmatter struct {
	Title     string `yaml:"title"`
	Identity  string `yaml:"identity"`
	Exported  string `yaml:"exported"`
	Messages  int    `yaml:"messages"`
	Generator string `yaml:"generator"`
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(t Transcript, w io.Writer) error {
	bw := bufio.NewWriter(w)

	// yaml.v3 quotes values as needed, so identities with ':' or newlines
	// cannot break out of the frontmatter.
	meta, err := yaml.Marshal(frontmatter{
		Title:     "Chat with " + t.Identity,
		Identity:  t.Identity,
		Exported:  t.ExportedAt.UTC().Format(time.RFC3339),
		Messages:  len(t.Messages),
		Generator: "gemchat",
	})
	if err != nil {
		return fmt.Errorf("frontmatter: %w", err)
	}
	bw.WriteString("---\n")
	bw.Write(meta)
	bw.WriteString("---\n\n")

	fmt.Fprintf(bw, "# Chat with %s\n\n", escapeMarkdown(t.Identity))

	if len(t.Messages) == 0 {
		bw.WriteString("*No messages.*\n")
		return bw.Flush()
	}

	for i, msg := range t.Messages {
		fmt.Fprintf(bw, "### %s\n\n", roleLabel(msg.Role))
		bw.WriteString(strings.TrimSpace(msg.Text))
		bw.WriteString("\n\n")
		if i < len(t.Messages)-1 {
			bw.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(bw, "---\n\n*Exported from gemchat on %s*\n",
		t.ExportedAt.Format("January 2, 2006 at 3:04 PM"))
	return bw.Flush()
}

// Extension implements Exporter.
func (e *MarkdownExporter) Extension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func roleLabel(role model.Role) string {
	return "[" + role.DisplayName() + "]"
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
