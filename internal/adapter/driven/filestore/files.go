// Package filestore keeps raw credential bytes on local disk so the
// extraction tool can be pointed at a real file path.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialFileStore = (*CredentialFiles)(nil)

const fileExt = ".txt"

// CredentialFiles stores one file per credential, named after its id.
type CredentialFiles struct {
	dir string
}

// NewCredentialFiles creates the directory if needed and returns a store rooted at it.
func NewCredentialFiles(dir string) (*CredentialFiles, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential directory %q: %w", dir, err)
	}
	return &CredentialFiles{dir: dir}, nil
}

// Put writes content atomically so a crash never leaves a half-written cookie file.
func (f *CredentialFiles) Put(id string, content []byte) (string, error) {
	location := filepath.Base(id) + fileExt
	if location == fileExt || strings.HasPrefix(location, ".") {
		return "", fmt.Errorf("invalid credential id %q", id)
	}

	path := filepath.Join(f.dir, location)
	if err := atomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("write credential %q: %w", id, err)
	}
	// Cookie files grant account access; keep them private.
	if err := os.Chmod(path, 0o600); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("chmod credential %q: %w", id, err)
	}

	return location, nil
}

// Remove deletes the file at location, treating a missing file as success.
func (f *CredentialFiles) Remove(location string) error {
	err := os.Remove(f.Path(location))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file %q: %w", location, err)
	}
	return nil
}

// Path resolves location inside the store directory. Only the base name of
// location is used, so a tampered record cannot point outside the directory.
func (f *CredentialFiles) Path(location string) string {
	return filepath.Join(f.dir, filepath.Base(location))
}

// List returns the locations of all credential files in the directory.
func (f *CredentialFiles) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list credential directory: %w", err)
	}

	var locations []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		locations = append(locations, e.Name())
	}
	return locations, nil
}
