// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the durable key/value store behind the credential and
// history stores.
//
// Values are opaque byte slices, usually JSON. Writes are full overwrites and
// the last writer wins. Two backends exist:
//
//   - sqlite: a single kv table in <dataDir>/gemchat.db (modernc.org/sqlite)
//   - file:   one JSON file per key under <dataDir>/store
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// Store is a durable string-keyed byte store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

var (
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("kv: invalid key")

	// ErrUnknownBackend is returned by Open for unsupported backend names.
	ErrUnknownBackend = errors.New("kv: unknown backend")
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Open builds the named backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, "gemchat.db"))
	case BackendFile:
		return OpenFileStore(filepath.Join(dataDir, "store"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// DecodeError reports a stored value that is not valid JSON for its target.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("kv: decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GetJSON decodes the value at key into dst. It reports false when the key is
// absent, leaving dst untouched.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, &DecodeError{Key: key, Err: err}
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
