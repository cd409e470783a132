package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

var (
	// ErrInvalidKey is returned when the key is not 32 bytes
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
	// ErrMalformedCiphertext is returned for input shorter than nonce + tag
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrAuthenticationFailed is returned when the GCM tag does not verify
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// AEAD seals values with AES-256-GCM using a fresh random nonce per value.
// Output layout: nonce || ciphertext || tag.
type AEAD struct {
	gcm  cipher.AEAD
	rand io.Reader
}

// NewAEAD creates an AES-256-GCM cipher from a raw 32-byte key
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AEAD{gcm: gcm, rand: rand.Reader}, nil
}

// ParseKey decodes a key given as base64 (std or url) or hex
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidKey
	}
	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, decode := range decoders {
		if key, err := decode(encoded); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// Seal encrypts plaintext, binding additionalData into the tag
func (a *AEAD) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(a.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.gcm.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open verifies and decrypts a value produced by Seal
func (a *AEAD) Open(sealed, additionalData []byte) ([]byte, error) {
	nonceSize := a.gcm.NonceSize()
	if len(sealed) < nonceSize+a.gcm.Overhead() {
		return nil, ErrMalformedCiphertext
	}

	plaintext, err := a.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], additionalData)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// MaskSecret masks a credential value for display, keeping the last 4 chars
func MaskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
