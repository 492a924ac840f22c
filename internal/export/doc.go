// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a stored conversation as a transcript file.
//
// # Key Types
//
//   - Transcript: identity, export time and messages
//   - Exporter: writes a Transcript in one format
//   - Format: markdown, json or yaml
//
// # Usage
//
//	exp, err := export.New(export.FormatMarkdown)
//	if err != nil {
//	    return err
//	}
//	err = exp.Export(export.Transcript{
//	    Identity:   "a@x.com",
//	    ExportedAt: time.Now(),
//	    Messages:   history,
//	}, os.Stdout)
package export
