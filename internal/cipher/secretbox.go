package cipher

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const secretboxNonceSize = 24

// Secretbox seals tokens with NaCl secretbox (XSalsa20-Poly1305).
type Secretbox struct {
	key [32]byte
}

// NewSecretbox builds a secretbox operator from a 32-byte raw or 64-char hex key.
func NewSecretbox(key string) (*Secretbox, error) {
	keyBytes, err := ResolveKey(key, 32)
	if err != nil {
		return nil, err
	}
	s := &Secretbox{}
	copy(s.key[:], keyBytes)
	return s, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (s *Secretbox) Encrypt(plaintext string) (string, error) {
	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return encodeToken(sealed), nil
}

// Decrypt opens a token produced by Encrypt under the same key.
func (s *Secretbox) Decrypt(token string) (string, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return "", err
	}
	if len(raw) < secretboxNonceSize+secretbox.Overhead {
		return "", fmt.Errorf("token too short: %w", ErrCipher)
	}
	var nonce [secretboxNonceSize]byte
	copy(nonce[:], raw[:secretboxNonceSize])
	plain, ok := secretbox.Open(nil, raw[secretboxNonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("authentication failed (wrong key or corrupted token): %w", ErrCipher)
	}
	return string(plain), nil
}
