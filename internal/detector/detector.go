// Package detector locates PII entities in text. It ships an in-process
// pattern scanner and a client for an external Presidio analyzer; both return
// byte-offset spans and leave substitution to the anonymizer.
package detector

import (
	"context"
	"errors"

	"github.com/dativo-io/veil/internal/span"
)

// ErrDetector wraps every failure of a detection backend.
var ErrDetector = errors.New("entity detection failed")

// DefaultEntities are requested when no entity list is configured.
var DefaultEntities = []string{"PERSON", "PHONE_NUMBER", "EMAIL_ADDRESS"}

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "en"

// Detector finds entity spans of the requested types in text.
// Returned spans are in no particular order and may overlap.
type Detector interface {
	Detect(ctx context.Context, text string, entities []string, language string) ([]span.Entity, error)
}
