package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey indicates the configured encryption key does not yield 32 bytes
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
	// ErrEncryptionFailed indicates the plaintext could not be sealed
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed indicates the ciphertext is corrupt, tampered with, or was
	// produced under a different key
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Vault encrypts and decrypts OAuth tokens at rest with AES-256-GCM.
// GCM authenticates the ciphertext, so a modified or truncated value is
// rejected instead of decrypting to garbage.
type Vault struct {
	aead cipher.AEAD
}

// NewVault builds a vault from the configured key. The key may be the raw
// 32-byte secret or a base64 encoding of one (std or URL-safe alphabet).
func NewVault(key string) (*Vault, error) {
	keyBytes, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext and returns nonce||ciphertext, base64-encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering with the stored value fails with
// ErrDecryptionFailed.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

func normalizeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(key); err == nil && len(decoded) == 32 {
			return decoded, nil
		}
	}

	if len(key) == 32 {
		return []byte(key), nil
	}

	return nil, ErrInvalidKey
}
