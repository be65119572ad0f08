package cipher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legacyKey is a 16-byte raw AES-128 key.
const legacyKey = "3t6w9z$C&F)J@NcR"

const (
	key32    = "abcdefghijklmnopqrstuvwxyz012345"
	key32Alt = "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"
	keyHex   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

func operators(t *testing.T) map[string]Operator {
	t.Helper()
	aes128, err := New(AlgorithmAESGCM, legacyKey)
	require.NoError(t, err)
	aes256, err := New("", keyHex)
	require.NoError(t, err)
	box, err := New(AlgorithmSecretbox, key32)
	require.NoError(t, err)
	return map[string]Operator{"aes-128-gcm": aes128, "aes-256-gcm hex key": aes256, "secretbox": box}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{"John", "555-123-4567", "jane.doe@example.com", "Zoë Ångström", "a", strings.Repeat("x", 4096)}
	for name, op := range operators(t) {
		t.Run(name, func(t *testing.T) {
			for _, in := range inputs {
				token, err := op.Encrypt(in)
				require.NoError(t, err)
				assert.NotEqual(t, in, token)
				out, err := op.Decrypt(token)
				require.NoError(t, err)
				assert.Equal(t, in, out)
			}
		})
	}
}

func TestTokenAlphabetNeedsNoEscaping(t *testing.T) {
	for name, op := range operators(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				token, err := op.Encrypt("Call John at 555-123-4567")
				require.NoError(t, err)
				for _, c := range token {
					ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
					require.Truef(t, ok, "unexpected token character %q in %s", c, token)
				}
			}
		})
	}
}

func TestTokenLengthDiffersFromPlaintext(t *testing.T) {
	op, err := NewAESGCM(legacyKey)
	require.NoError(t, err)
	token, err := op.Encrypt("John")
	require.NoError(t, err)
	assert.Greater(t, len(token), len("John"))
}

func TestNonDeterministicTokens(t *testing.T) {
	op, err := NewAESGCM(key32)
	require.NoError(t, err)
	a, err := op.Encrypt("same")
	require.NoError(t, err)
	b, err := op.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each token uses a fresh nonce")
}

func TestKeyMismatch(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
	}{
		{"aes-gcm", AlgorithmAESGCM},
		{"secretbox", AlgorithmSecretbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(tt.algorithm, key32)
			require.NoError(t, err)
			dec, err := New(tt.algorithm, key32Alt)
			require.NoError(t, err)

			token, err := enc.Encrypt("555-123-4567")
			require.NoError(t, err)
			out, err := dec.Decrypt(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCipher)
			assert.Empty(t, out)
		})
	}
}

func TestMalformedTokens(t *testing.T) {
	for name, op := range operators(t) {
		t.Run(name, func(t *testing.T) {
			for _, token := range []string{"", "not base64!", "AAAA", "YWJj"} {
				_, err := op.Decrypt(token)
				assert.ErrorIs(t, err, ErrCipher, "token %q", token)
			}

			good, err := op.Encrypt("payload")
			require.NoError(t, err)
			flipped := []byte(good)
			if flipped[len(flipped)-2] == 'A' {
				flipped[len(flipped)-2] = 'B'
			} else {
				flipped[len(flipped)-2] = 'A'
			}
			_, err = op.Decrypt(string(flipped))
			assert.ErrorIs(t, err, ErrCipher)
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		key       string
	}{
		{"aes empty", AlgorithmAESGCM, ""},
		{"aes 15 bytes", AlgorithmAESGCM, "123456789012345"},
		{"secretbox 16 bytes", AlgorithmSecretbox, legacyKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.algorithm, tt.key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}

	_, err := New("rot13", key32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cipher algorithm")
}

func TestResolveKey(t *testing.T) {
	b, err := ResolveKey(keyHex, 32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
	assert.Equal(t, byte(0x1f), b[31])

	b, err = ResolveKey(legacyKey, 16, 24, 32)
	require.NoError(t, err)
	assert.Equal(t, []byte(legacyKey), b)
}
