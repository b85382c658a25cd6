package provider

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Decryptor recovers the plaintext provider configuration from a tenant's
// encrypted credential blob. Adapters call it immediately before the
// provider invocation; any failure is treated as permanent.
type Decryptor interface {
	Decrypt(blob []byte) ([]byte, error)
}

// Encryptor seals a plaintext provider configuration for storage.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// AESCipher implements Encryptor and Decryptor with AES-256-GCM.
// Blobs are nonce-prefixed: nonce || ciphertext.
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher creates a cipher from a 32-byte key.
func NewAESCipher(key []byte) (*AESCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCipher{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce.
func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed blob.
func (c *AESCipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < c.aead.NonceSize() {
		return nil, errors.New("credential blob too short")
	}
	nonce, ciphertext := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}

// decryptConfig is the shared adapter helper: decrypt the blob and return a
// permanent provider error on failure.
func decryptConfig(d Decryptor, blob []byte) ([]byte, *Error) {
	plaintext, err := d.Decrypt(blob)
	if err != nil {
		return nil, Permanent(CodeDecryptFailed, "credential decryption failed: %v", err)
	}
	return plaintext, nil
}
