// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"io"
)

// JSONExporter writes transcripts as indented JSON.
type JSONExporter struct{}

// Export implements Exporter.
func (e *JSONExporter) Export(t Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toRecord(t))
}

// Extension implements Exporter.
func (e *JSONExporter) Extension() string {
	return ".json"
}
