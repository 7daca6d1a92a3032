package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nifty-go/internal/registry"
)

// FileSystemStore keeps content as files named by their SHA-256,
// fanned out by the first two hex characters:
//
//	<root>/
//	  ab/
//	    abcdef...   (content files)
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at root, creating it if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(cid string) string {
	return filepath.Join(s.root, cid[:2], cid)
}

// Put stores the content. Storing the same bytes twice is a no-op.
func (s *FileSystemStore) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, cid, err := digest(r, size)
	if err != nil {
		return "", err
	}

	destPath := s.path(cid)
	if _, err := os.Stat(destPath); err == nil {
		return cid, nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create content directory: %w", err)
	}
	if err := writeFile(destPath, data); err != nil {
		return "", err
	}
	return cid, nil
}

func (s *FileSystemStore) Get(ctx context.Context, cid string, w io.Writer) error {
	if err := checkCID(cid); err != nil {
		return err
	}

	f, err := os.Open(s.path(cid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, cid)
		}
		return fmt.Errorf("failed to open content file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the root is a writable directory.
func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("content root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("content root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("content root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes data to destPath using a temp file and rename.
func writeFile(destPath string, data []byte) error {
	// same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ registry.ContentStore = (*FileSystemStore)(nil)
