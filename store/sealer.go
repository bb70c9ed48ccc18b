package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100_000
	keyLength     = 32
)

// DefaultSalt is used when no per-installation salt is supplied.
const DefaultSalt = "authkit-secure-token-store"

// Sealer encrypts values with AES-256-GCM under a passphrase-derived key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a key from passphrase with PBKDF2-SHA256.
func NewSealer(passphrase, salt string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("authkit/store: empty passphrase")
	}
	if salt == "" {
		salt = DefaultSalt
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("authkit/store: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("authkit/store: gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext, base64 encoded.
// key is bound as additional data so sealed values cannot be swapped between keys.
func (s *Sealer) Seal(key, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("authkit/store: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(key))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(key, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("authkit/store: decode: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("authkit/store: sealed value too short")
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("authkit/store: open: %w", err)
	}
	return string(plain), nil
}

func (s *Sealer) seal(key, value string) (string, error) {
	if s == nil {
		return value, nil
	}
	return s.Seal(key, value)
}

func (s *Sealer) open(key, value string) (string, error) {
	if s == nil {
		return value, nil
	}
	return s.Open(key, value)
}
