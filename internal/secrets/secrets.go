// Package secrets seals quiz secrets with AES-GCM so they can cross process
// boundaries (workflow history, queues) without appearing in clear text.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const sealedPrefix = "sealed:v1:"

var (
	newGCM = cipher.NewGCM

	ErrInvalidKey    = errors.New("SESSION_SEAL_KEY must be 32 bytes or base64-encoded 32 bytes")
	ErrInvalidSealed = errors.New("invalid sealed secret")
)

func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("SESSION_SEAL_KEY is required")
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return nil, ErrInvalidKey
	}
	return decoded, nil
}

// Sealer encrypts and decrypts secrets with one key.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	combined := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(combined), nil
}

// Open returns the plaintext of a sealed value. Values without the sealed
// prefix are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSealed
	}
	if len(data) < s.aead.NonceSize() {
		return "", ErrInvalidSealed
	}
	nonce := data[:s.aead.NonceSize()]
	plain, err := s.aead.Open(nil, nonce, data[s.aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
