// Package cryptutil implements at-rest field encryption for sensitive
// employee PII (such as bank account numbers) using
// AES-256-GCM with a per-field-class key derived from the configured
// encryption_key via HKDF, so a single operator secret never touches a
// cipher directly.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned when Decrypt is given a payload too
// short to contain a nonce.
var ErrCiphertextTooShort = errors.New("cryptutil: ciphertext shorter than nonce size")

// Box encrypts and decrypts values for one field class (e.g. "bank_account",
// "withholding_slip"). Each class derives its own AES-256 key from the
// master secret via HKDF, so compromising one class's derived key does not
// expose the others and the same master secret can be rotated once.
type Box struct {
	key []byte
}

// NewBox derives a Box's AES-256 key from masterKey via HKDF-SHA256, using
// info to domain-separate the field class. masterKey is config.EncryptionKey.
func NewBox(masterKey, info string) (*Box, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("cryptutil: empty master key")
	}
	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cryptutil: derive key: %w", err)
	}
	return &Box{key: key}, nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt returns a base64url-encoded nonce||ciphertext string. An empty
// plaintext encrypts to an empty string, so optional fields round-trip
// without a sentinel.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptutil: read nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (b *Box) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decode: %w", err)
	}
	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decrypt: %w", err)
	}
	return string(plaintext), nil
}
