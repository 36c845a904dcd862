// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound indicates the log file does not exist.
var ErrNotFound = errors.New("memory: not found")

// FileSink persists entries as JSON lines in a file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a file-backed sink.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the backing file.
func (f *FileSink) Path() string {
	return f.path
}

// Write appends a JSON-encoded entry to the file.
func (f *FileSink) Write(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(entry)
}

// LoadFile reads every entry written by a FileSink, oldest first.
func LoadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
