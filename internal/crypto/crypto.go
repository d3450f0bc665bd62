// Package crypto seals stored documents with a passphrase-derived key.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// Argon2id parameters
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // 64 MB
	Argon2Threads = 4
	Argon2KeyLen  = chacha20poly1305.KeySize

	SaltSize  = 16
	NonceSize = chacha20poly1305.NonceSizeX
)

var (
	ErrDecryptionFailed  = errors.New("decryption failed: invalid passphrase, corrupted data or record moved")
	ErrInvalidCiphertext = errors.New("ciphertext too short")
)

func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Sealer encrypts records with XChaCha20-Poly1305. Every record is bound to
// a label (the bucket key it is stored under), so a sealed value copied to
// another key no longer opens.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from passphrase and salt with argon2id.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes", SaltSize)
	}
	key := argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
	return newSealer(key)
}

func newSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext for plaintext stored under label.
func (s *Sealer) Seal(label string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

// Open reverses Seal. It fails with ErrDecryptionFailed for a wrong key or
// a record sealed under a different label.
func (s *Sealer) Open(label string, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	plaintext, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], []byte(label))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
