package fade

import "io"

// BlobStore holds attachment content on the local device, addressed by the
// SHA-256 checksum of the plaintext.
type BlobStore interface {
	// Put reads r to completion and stores it. Storing content that already
	// exists is a no-op. Returns the checksum and size of the content.
	Put(r io.Reader) (checksum string, size int64, err error)

	// Open returns a reader for stored content.
	Open(checksum string) (io.ReadCloser, error)

	// Has reports whether content with the checksum is stored.
	Has(checksum string) (bool, error)

	// Remove deletes stored content. Removing absent content is not an error.
	Remove(checksum string) error
}
