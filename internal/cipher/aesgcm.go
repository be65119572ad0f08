package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// AESGCM is the default operator. Each token carries its own random nonce, so
// encrypting the same value twice yields different tokens.
type AESGCM struct {
	gcm stdcipher.AEAD
}

// NewAESGCM builds an AES-GCM operator. The key must be 16, 24, or 32 raw bytes
// (AES-128/192/256) or the hex encoding of one of those sizes.
func NewAESGCM(key string) (*AESGCM, error) {
	keyBytes, err := ResolveKey(key, 16, 24, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &AESGCM{gcm: gcm}, nil
}

// Encrypt seals plaintext and returns the token.
func (a *AESGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, a.gcm.NonceSize(), a.gcm.NonceSize()+len(plaintext)+a.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := a.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encodeToken(sealed), nil
}

// Decrypt opens a token produced by Encrypt under the same key.
func (a *AESGCM) Decrypt(token string) (string, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return "", err
	}
	ns := a.gcm.NonceSize()
	if len(raw) < ns+a.gcm.Overhead() {
		return "", fmt.Errorf("token too short: %w", ErrCipher)
	}
	plain, err := a.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("authentication failed (wrong key or corrupted token): %w", ErrCipher)
	}
	return string(plain), nil
}
