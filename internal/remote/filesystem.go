package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"fade-go/internal/fade"
)

// FileSystemRemote is a filesystem-based implementation of the Remote interface.
// It stores records and blobs per owner:
//
//	<root>/
//	  <owner>/
//	    entries/
//	      <id>.json    (one JSON record per entry)
//	    blobs/
//	      <name>       (attachment content, named by checksum)
type FileSystemRemote struct {
	name string
	root string
}

// NewFileSystemRemote creates a new filesystem remote rooted at the given path.
func NewFileSystemRemote(name, root string) (*FileSystemRemote, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote root: %w", err)
	}
	return &FileSystemRemote{name: name, root: root}, nil
}

func (v *FileSystemRemote) entriesDir(owner string) string {
	return filepath.Join(v.root, owner, "entries")
}

func (v *FileSystemRemote) blobsDir(owner string) string {
	return filepath.Join(v.root, owner, "blobs")
}

// PutEntry writes the record atomically, replacing any previous version.
func (v *FileSystemRemote) PutEntry(ctx context.Context, owner string, entry *fade.RemoteEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "entry id", entry.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	dir := v.entriesDir(owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create entries directory: %w", err)
	}
	return v.writeFile(filepath.Join(dir, entry.ID+".json"), bytes.NewReader(data), int64(len(data)))
}

func (v *FileSystemRemote) ListEntries(ctx context.Context, owner string) ([]*fade.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validSegment("owner", owner); err != nil {
		return nil, err
	}
	files, err := os.ReadDir(v.entriesDir(owner))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading entries directory: %w", err)
	}

	var out []*fade.RemoteEntry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(v.entriesDir(owner), f.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", f.Name(), err)
		}
		var e fade.RemoteEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding entry %s: %w", f.Name(), err)
		}
		out = append(out, &e)
	}
	slices.SortFunc(out, func(a, b *fade.RemoteEntry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (v *FileSystemRemote) DeleteEntry(ctx context.Context, owner, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "entry id", id); err != nil {
		return err
	}
	return removeIfExists(filepath.Join(v.entriesDir(owner), id+".json"))
}

func (v *FileSystemRemote) HasBlob(ctx context.Context, owner, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(v.blobsDir(owner), name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking blob: %w", err)
}

// PutBlob stores a blob. Storing a name that already exists replaces it.
func (v *FileSystemRemote) PutBlob(ctx context.Context, owner, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	dir := v.blobsDir(owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blobs directory: %w", err)
	}
	return v.writeFile(filepath.Join(dir, name), r, size)
}

func (v *FileSystemRemote) GetBlob(ctx context.Context, owner, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(v.blobsDir(owner), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: blob %s", fade.ErrNotFound, name)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

func (v *FileSystemRemote) DeleteBlob(ctx context.Context, owner, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	return removeIfExists(filepath.Join(v.blobsDir(owner), name))
}

// ValidateSetup verifies that the remote root is an accessible directory.
func (v *FileSystemRemote) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("remote root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemRemote) writeFile(destPath string, r io.Reader, expectedSize int64) error {
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
		return fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", fade.ErrValidationFailed, expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Compile-time check that FileSystemRemote implements fade.Remote interface
var _ fade.Remote = (*FileSystemRemote)(nil)
