package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docvault/internal/core"
)

// FileSystemStore stores content blobs as files named by checksum under
// a root directory:
//
//	<root>/
//	  blobs/
//	    <checksum>
type FileSystemStore struct {
	root     string
	blobsDir string
}

// NewFileSystemStore creates a filesystem content store rooted at the
// given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	blobsDir := filepath.Join(root, "blobs")
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &FileSystemStore{root: root, blobsDir: blobsDir}, nil
}

// Put stores content under its checksum.
// The operation is idempotent: storing the same checksum multiple times is safe.
func (s *FileSystemStore) Put(checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(s.blobsDir, checksum)

	// If the blob already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		// Consume the reader to maintain expected behavior
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return s.writeFile(destPath, r, size)
}

// Get retrieves content by checksum and writes it to w.
func (s *FileSystemStore) Get(checksum string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.blobsDir, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", checksum)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	return nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.blobsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("content store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("content store path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write
// (temp file + rename).
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
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

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements core.ContentStore
var _ core.ContentStore = (*FileSystemStore)(nil)
