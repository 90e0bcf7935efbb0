package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"fade-go/internal/fade"
)

// MemoryRemote is an in-memory implementation of the Remote interface.
// Records are stored in encoded form so callers never share memory with the
// remote. This implementation is safe for concurrent use.
type MemoryRemote struct {
	name    string
	entries map[string][]byte // "owner/id" -> JSON record
	blobs   map[string][]byte // "owner/name" -> content
	mu      sync.RWMutex
}

// NewMemoryRemote creates a new in-memory remote with the given name.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name:    name,
		entries: make(map[string][]byte),
		blobs:   make(map[string][]byte),
	}
}

func key(owner, name string) string {
	return owner + "/" + name
}

func (m *MemoryRemote) PutEntry(ctx context.Context, owner string, entry *fade.RemoteEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "entry id", entry.ID); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key(owner, entry.ID)] = data
	return nil
}

func (m *MemoryRemote) ListEntries(ctx context.Context, owner string) ([]*fade.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := owner + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*fade.RemoteEntry
	for k, data := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		var e fade.RemoteEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding entry %s: %w", k, err)
		}
		out = append(out, &e)
	}
	slices.SortFunc(out, func(a, b *fade.RemoteEntry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryRemote) DeleteEntry(ctx context.Context, owner, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(owner, id))
	return nil
}

func (m *MemoryRemote) HasBlob(ctx context.Context, owner, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key(owner, name)]
	return ok, nil
}

func (m *MemoryRemote) PutBlob(ctx context.Context, owner, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", fade.ErrValidationFailed, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key(owner, name)] = data
	return nil
}

func (m *MemoryRemote) GetBlob(ctx context.Context, owner, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	data, ok := m.blobs[key(owner, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: blob %s", fade.ErrNotFound, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (m *MemoryRemote) DeleteBlob(ctx context.Context, owner, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key(owner, name))
	return nil
}

// ValidateSetup always succeeds for the in-memory remote.
func (m *MemoryRemote) ValidateSetup(ctx context.Context) error {
	return nil
}

// BlobCount returns the number of blobs stored for owner.
func (m *MemoryRemote) BlobCount(owner string) int {
	prefix := owner + "/"
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// Name returns the configured remote name.
func (m *MemoryRemote) Name() string {
	return m.name
}

// Compile-time check that MemoryRemote implements fade.Remote interface
var _ fade.Remote = (*MemoryRemote)(nil)
