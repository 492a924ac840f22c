// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes transcripts as a YAML document.
type YAMLExporter struct{}

// Export implements Exporter.
func (e *YAMLExporter) Export(t Transcript, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toRecord(t)); err != nil {
		return err
	}
	return enc.Close()
}

// Extension implements Exporter.
func (e *YAMLExporter) Extension() string {
	return ".yaml"
}
