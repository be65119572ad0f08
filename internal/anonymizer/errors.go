package anonymizer

import (
	"errors"

	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/session"
)

// Failure taxonomy. Callers match with errors.Is; every error returned by this
// package wraps exactly one of these.
var (
	// ErrValidation is returned for empty or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSpan is returned when a detector span does not fit its text.
	ErrInvalidSpan = errors.New("invalid entity span")
	// ErrSessionNotFound is returned for an unknown or evicted session id.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrCipher is returned on key mismatch, malformed tokens, or corrupt records.
	ErrCipher = cipher.ErrCipher
	// ErrDetector is returned when the entity detector fails.
	ErrDetector = detector.ErrDetector
)
