package blobstore

import (
	"encoding/hex"
	"fmt"

	"fade-go/internal/config"
	"fade-go/internal/fade"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the attachments config type.
func NewBlobStoreFromConfig(cfg config.AttachmentsConfig) (fade.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBlobStore(), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem blob store requires dir to be set")
		}
		return NewFileSystemBlobStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown attachments type: %s", cfg.Type)
	}
}

// ValidateChecksum rejects anything that is not a lowercase hex SHA-256 digest.
// Checksums become file names, so this also keeps paths inside the store.
func ValidateChecksum(checksum string) error {
	if len(checksum) != 64 {
		return fmt.Errorf("%w: invalid checksum %q", fade.ErrValidationFailed, checksum)
	}
	if _, err := hex.DecodeString(checksum); err != nil {
		return fmt.Errorf("%w: invalid checksum %q", fade.ErrValidationFailed, checksum)
	}
	for _, c := range checksum {
		if c >= 'A' && c <= 'F' {
			return fmt.Errorf("%w: invalid checksum %q", fade.ErrValidationFailed, checksum)
		}
	}
	return nil
}
