package testutil

import (
	"fade-go/internal/blobstore"
	"fade-go/internal/remote"
)

// NewTestBlobStore creates a new in-memory blob store for testing.
func NewTestBlobStore() *blobstore.MemoryBlobStore {
	return blobstore.NewMemoryBlobStore()
}

// NewTestRemote creates a new in-memory remote for testing.
func NewTestRemote() *remote.MemoryRemote {
	return remote.NewMemoryRemote("test-remote")
}
