package encryption

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func TestTestEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "photo bytes", input: []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte("memory"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(encrypted.Bytes(), testHeader) {
				t.Error("encrypted output does not start with test header")
			}

			ctx, err := e.Unlock("any-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var decrypted bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_ChecksumsDiffer(t *testing.T) {
	t.Parallel()

	input := []byte("a scanned ticket stub")
	var encrypted bytes.Buffer
	if err := NewTestEncryptor().Encrypt(bytes.NewReader(input), &encrypted); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if sha256.Sum256(input) == sha256.Sum256(encrypted.Bytes()) {
		t.Error("plaintext and encrypted checksums should differ")
	}
}

func TestTestEncryptor_Passphrase(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := e.Setup("again"); !errors.Is(err, ErrKeysExist) {
		t.Errorf("second Setup() error = %v, want ErrKeysExist", err)
	}
	if _, err := e.Unlock("wrong"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unlock(wrong) error = %v, want ErrWrongPassphrase", err)
	}
	if _, err := e.Unlock("correct horse"); err != nil {
		t.Errorf("Unlock(correct) error = %v", err)
	}
}

func TestTestDecryptionContext_RejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"wrong header", []byte("NOT_VALID_HEADER_data")},
		{"truncated header", []byte("FADE")},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := (&TestDecryptionContext{}).Decrypt(bytes.NewReader(tt.data), &out); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}
