package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fade-go/internal/fade"
)

// FileSystemBlobStore is a filesystem-based implementation of the BlobStore interface.
// Content is stored under a two-character fan-out directory:
//
//	<dir>/
//	  ab/
//	    ab12...    (content files, named by SHA-256)
type FileSystemBlobStore struct {
	dir string
}

// NewFileSystemBlobStore creates a blob store rooted at dir, creating it if needed.
func NewFileSystemBlobStore(dir string) (*FileSystemBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemBlobStore{dir: dir}, nil
}

// Put hashes r while writing it to a temp file, then renames the file into place.
func (s *FileSystemBlobStore) Put(r io.Reader) (string, int64, error) {
	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmpFile, io.TeeReader(r, hasher))
	if err != nil {
		tmpFile.Close()
		return "", 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	destPath := s.path(checksum)

	// Content already present; the temp file is discarded.
	if _, err := os.Stat(destPath); err == nil {
		return checksum, size, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create fan-out directory: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return checksum, size, nil
}

// Open returns a reader for the content with the given checksum.
func (s *FileSystemBlobStore) Open(checksum string) (io.ReadCloser, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(checksum))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", fade.ErrNotFound, checksum)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Has reports whether content with the checksum is stored.
func (s *FileSystemBlobStore) Has(checksum string) (bool, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(checksum))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking blob: %w", err)
}

// Remove deletes the content with the given checksum.
func (s *FileSystemBlobStore) Remove(checksum string) error {
	if err := ValidateChecksum(checksum); err != nil {
		return err
	}
	if err := os.Remove(s.path(checksum)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}

// Dir returns the root directory of the store.
func (s *FileSystemBlobStore) Dir() string {
	return s.dir
}

func (s *FileSystemBlobStore) path(checksum string) string {
	return filepath.Join(s.dir, checksum[:2], checksum)
}

// Compile-time check that FileSystemBlobStore implements fade.BlobStore interface
var _ fade.BlobStore = (*FileSystemBlobStore)(nil)
