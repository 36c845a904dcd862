// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact persists generated charts and reports without ever
// overwriting an existing file.
package artifact

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jllopis/spendlens/pkg/errors"
)

// Store writes artifact content under a directory and returns its path.
type Store interface {
	Write(ctx context.Context, content []byte, dir, filenameHint string) (string, error)
}

// FSStore writes artifacts to the local filesystem, confined under Root.
type FSStore struct {
	root string
	// maxAttempts bounds collision retries.
	maxAttempts int
}

// NewFSStore creates a store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root, maxAttempts: 8}
}

// Root returns the confining directory.
func (s *FSStore) Root() string {
	return s.root
}

// Write stores content as dir/filenameHint under the root. dir is relative to
// the root; absolute or escaping paths are rejected. When the name is taken a
// uuid fragment is appended until a free name is found.
func (s *FSStore) Write(ctx context.Context, content []byte, dir, filenameHint string) (string, error) {
	name := SafeName(filenameHint)
	if err := ctx.Err(); err != nil {
		return "", errors.ArtifactPersist(name, err)
	}

	target, err := s.resolveDir(dir)
	if err != nil {
		return "", errors.ArtifactPersist(name, err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", errors.ArtifactPersist(name, err)
	}

	candidate := name
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		path := filepath.Join(target, candidate)
		err := writeFileExclusive(path, content, 0o644)
		if err == nil {
			return path, nil
		}
		if !stderrors.Is(err, os.ErrExist) {
			return "", errors.ArtifactPersist(name, err)
		}
		candidate = withSuffix(name, uuid.NewString()[:8])
	}
	return "", errors.ArtifactPersist(name, fmt.Errorf("no free filename after %d attempts", s.maxAttempts))
}

func (s *FSStore) resolveDir(dir string) (string, error) {
	if dir == "" || dir == "." {
		return s.root, nil
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("artifact dir %q must be relative", dir)
	}
	clean := filepath.Clean(dir)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact dir %q escapes the store root", dir)
	}
	return filepath.Join(s.root, clean), nil
}

// writeFileExclusive writes data to a temp file and links it into place, so
// readers never observe a partial file and an existing path is never replaced.
func writeFileExclusive(path string, data []byte, perm os.FileMode) error {
	if _, err := os.Lstat(path); err == nil {
		return os.ErrExist
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmpName, path)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._\-\p{Han}]+`)

// SafeName reduces hint to a plain base filename.
func SafeName(hint string) string {
	name := filepath.Base(strings.ReplaceAll(hint, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		name = "artifact_" + uuid.NewString()[:8]
	}
	return name
}

func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}
