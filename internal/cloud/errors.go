// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("service not configured")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("service transport failure")
)

// ConfigurationError reports a missing or unusable external credential.
type ConfigurationError struct {
	// Setting names what is missing, e.g. the environment variable.
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

// Is makes errors.Is(err, ErrConfiguration) true.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError reports a failure talking to the service, before or during
// a stream.
type TransportError struct {
	Provider string
	// Status is the HTTP status, or 0 when the failure was not an HTTP reply.
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, msg)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) true.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
