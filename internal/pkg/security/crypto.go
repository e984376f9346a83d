package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ManuelReschke/Recurro/internal/pkg/env"
)

// Tenant credentials (Paystack keys, WhatsApp API keys) are stored as
// "nonce:tag:ciphertext" hex triples encrypted with AES-256-GCM under the
// ENCRYPTION_KEY environment variable (64 hex chars).

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

func encryptionKey() ([]byte, error) {
	raw := strings.TrimSpace(env.GetEnv("ENCRYPTION_KEY", ""))
	if raw == "" {
		return nil, errors.New("ENCRYPTION_KEY is not configured")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Encrypt encrypts plaintext with the configured key.
func Encrypt(plaintext string) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	return EncryptWithKey(plaintext, key)
}

// Decrypt reverses Encrypt. Corrupt or legacy values return
// ErrInvalidCiphertext so callers can skip them instead of failing hard.
func Decrypt(data string) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	return DecryptWithKey(data, key)
}

// EncryptWithKey is the key-injected variant used by tests.
func EncryptWithKey(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// DecryptWithKey is the key-injected variant used by tests.
func DecryptWithKey(data string, key []byte) (string, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", ErrInvalidCiphertext
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
