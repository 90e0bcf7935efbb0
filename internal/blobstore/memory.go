package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"fade-go/internal/fade"
)

// MemoryBlobStore is an in-memory implementation of the BlobStore interface.
// This implementation is safe for concurrent use.
type MemoryBlobStore struct {
	content map[string][]byte // checksum -> content
	mu      sync.RWMutex
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{content: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Put(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.content[checksum]; !ok {
		m.content[checksum] = data
	}
	return checksum, int64(len(data)), nil
}

func (m *MemoryBlobStore) Open(checksum string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[checksum]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", fade.ErrNotFound, checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryBlobStore) Has(checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.content[checksum]
	return ok, nil
}

func (m *MemoryBlobStore) Remove(checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.content, checksum)
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// Compile-time check that MemoryBlobStore implements fade.BlobStore interface
var _ fade.BlobStore = (*MemoryBlobStore)(nil)
