// Package cipher provides the reversible, keyed transform that turns a PII
// substring into an opaque token and back.
//
// Tokens are base64url (no padding) encodings of nonce || ciphertext. Their
// alphabet [A-Za-z0-9_-] never needs escaping inside surrounding plain text or
// JSON, so tokens can be spliced into text without affecting offset arithmetic.
// Every token is authenticated: decrypting with a different key or a damaged
// token fails with ErrCipher instead of returning garbage.
package cipher

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dativo-io/veil/internal/cryptoutil"
)

var (
	// ErrCipher is returned when a token cannot be decrypted: it is malformed,
	// was produced under a different key, or has been corrupted.
	ErrCipher = errors.New("cipher error")
	// ErrInvalidKey is returned when the configured key has an unusable length.
	ErrInvalidKey = errors.New("invalid cipher key")
)

// Algorithm names accepted by New.
const (
	AlgorithmAESGCM    = "aes-gcm"
	AlgorithmSecretbox = "secretbox"
)

// Operator encrypts substrings into tokens and recovers them. The key is bound
// when the operator is constructed.
type Operator interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

var tokenEncoding = base64.RawURLEncoding

// New returns the operator for algorithm, keyed with key. An empty algorithm
// selects AES-GCM.
func New(algorithm, key string) (Operator, error) {
	switch algorithm {
	case "", AlgorithmAESGCM:
		return NewAESGCM(key)
	case AlgorithmSecretbox:
		return NewSecretbox(key)
	default:
		return nil, fmt.Errorf("unknown cipher algorithm %q", algorithm)
	}
}

// ResolveKey interprets key as raw bytes or, when it is an even-length hex
// string whose decoded size is one of sizes, as hex. The result must have one
// of the accepted sizes.
func ResolveKey(key string, sizes ...int) ([]byte, error) {
	if len(key)%2 == 0 && cryptoutil.IsHexString(key) && acceptedSize(len(key)/2, sizes) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decoding hex key: %w", ErrInvalidKey)
		}
		return decoded, nil
	}
	if acceptedSize(len(key), sizes) {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("key must be %v raw bytes or the hex encoding thereof (got %d): %w", sizes, len(key), ErrInvalidKey)
}

func acceptedSize(n int, sizes []int) bool {
	for _, s := range sizes {
		if n == s {
			return true
		}
	}
	return false
}

func encodeToken(b []byte) string {
	return tokenEncoding.EncodeToString(b)
}

func decodeToken(token string) ([]byte, error) {
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed token: %w", ErrCipher)
	}
	return raw, nil
}
