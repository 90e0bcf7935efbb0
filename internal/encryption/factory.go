package encryption

import (
	"fmt"

	"fade-go/internal/config"
	"fade-go/internal/fade"
)

// NewEncryptorFromConfig returns the Encryptor applied to attachment blobs
// before they leave the device. "none" yields nil and blobs are uploaded as
// stored locally. "age" seals them to the public key; the private key is only
// needed later, when another device downloads them.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (fade.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
