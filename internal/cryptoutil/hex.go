// Package cryptoutil holds key-encoding helpers shared by the cipher, the
// audit signer and config validation.
package cryptoutil

import "encoding/hex"

// IsHexString reports whether s consists entirely of hexadecimal characters.
// It returns true for an empty string; callers check length separately.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeHexKey decodes key when it is an even-length hex string that decodes
// to at least minBytes. ok is false when key should be treated as raw bytes.
func DecodeHexKey(key string, minBytes int) (decoded []byte, ok bool) {
	if len(key) == 0 || len(key)%2 != 0 || len(key)/2 < minBytes || !IsHexString(key) {
		return nil, false
	}
	decoded, err := hex.DecodeString(key)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
