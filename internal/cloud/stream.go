// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/jeranaias/gemchat/internal/model"
)

// Client is a streaming text-generation backend.
type Client interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// StreamGenerate streams the reply to contents, whose last element is the
	// new user prompt. Request errors surface through the Stream's Err.
	StreamGenerate(ctx context.Context, contents model.History) Stream
}

// Stream is a lazy, finite, non-restartable sequence of reply fragments.
//
//	for s.Next() {
//	    use(s.Fragment())
//	}
//	err := s.Err()
//
// The concatenation of all fragments is the full reply. Err returns nil
// when the model finished normally and a *TransportError otherwise;
// fragments already delivered are not retracted.
type Stream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// errStream is a Stream that fails before producing anything.
type errStream struct {
	err error
}

func (s *errStream) Next() bool       { return false }
func (s *errStream) Fragment() string { return "" }
func (s *errStream) Err() error       { return s.err }
func (s *errStream) Close() error     { return nil }

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				line = bytes.TrimRight(line, "\r\n")
				if bytes.HasPrefix(line, []byte("data:")) {
					dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
				}
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line ends the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// id:, retry: and ":" comments are ignored.
	}
}
