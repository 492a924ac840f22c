// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/gemchat/internal/util"
)

const (
	fileExt = ".json"
	// keyExt marks the sidecar holding the key of a hashed file name.
	keyExt = ".key"
	// maxNameLen keeps names well under the usual 255-byte NAME_MAX.
	maxNameLen   = 200
	hashedPrefix = "~"
)

// FileStore keeps each key in its own file under Dir.
//
// File names keep only lower-case letters, digits and ".-_@"; every other
// byte, upper-case letters included, is written as %XX. Keys that differ only
// in case therefore stay distinct on case-insensitive filesystems. A name
// longer than maxNameLen is replaced by "~" and the key's SHA-256, with the
// key itself kept in a ".key" sidecar so Keys can report it.
type FileStore struct {
	Dir string

	mu sync.RWMutex
}

// OpenFileStore creates dir if needed and returns a store rooted there.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

// fileName maps key to its base file name and reports whether it was hashed.
func fileName(key string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '.', c == '-', c == '_', c == '@':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	if b.Len() <= maxNameLen {
		return b.String(), false
	}
	sum := sha256.Sum256([]byte(key))
	return hashedPrefix + hex.EncodeToString(sum[:]), true
}

func (s *FileStore) path(key string) string {
	name, _ := fileName(key)
	return filepath.Join(s.Dir, name+fileExt)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, hashed := fileName(key)
	if hashed {
		if err := util.AtomicWriteFile(filepath.Join(s.Dir, name+keyExt), []byte(key), 0600); err != nil {
			return fmt.Errorf("failed to write key of %s: %w", name, err)
		}
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(filepath.Join(s.Dir, name+fileExt), value, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, hashed := fileName(key)
	if err := os.Remove(filepath.Join(s.Dir, name+fileExt)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if hashed {
		if err := os.Remove(filepath.Join(s.Dir, name+keyExt)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete key of %s: %w", name, err)
		}
	}
	return nil
}

func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := s.keyOf(strings.TrimSuffix(name, fileExt))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyOf recovers the key stored under base. Callers hold s.mu.
func (s *FileStore) keyOf(base string) (string, error) {
	if strings.HasPrefix(base, hashedPrefix) {
		data, err := os.ReadFile(filepath.Join(s.Dir, base+keyExt))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return url.PathUnescape(base)
}

func (s *FileStore) Close() error { return nil }
