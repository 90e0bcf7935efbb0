package encryption

import (
	"bytes"
	"fmt"
	"io"

	"fade-go/internal/fade"
)

// testHeader marks blobs produced by TestEncryptor.
var testHeader = []byte("FADEENC\x00")

// TestEncryptor is a deterministic stand-in for age in tests and local demos.
// Encrypt prepends testHeader, so an "encrypted" blob has a different checksum
// from its plaintext, and Decrypt strips it again. When Setup has been called,
// Unlock only accepts the same passphrase.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if e.setup {
		return ErrKeysExist
	}
	e.passphrase = passphrase
	e.setup = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (fade.DecryptionContext, error) {
	if e.setup && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

// IsConfigured always reports true so tests need no key setup.
func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

var (
	_ fade.Encryptor         = (*TestEncryptor)(nil)
	_ fade.DecryptionContext = (*TestDecryptionContext)(nil)
)
