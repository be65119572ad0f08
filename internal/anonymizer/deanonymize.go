package anonymizer

import (
	"fmt"

	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/span"
)

// Deanonymize restores text by decrypting the token under each record.
// Records are processed right-to-left. A record that falls outside the text or
// overlaps a record to its right means the session is corrupt and yields
// cipher.ErrCipher; nothing is returned in that case.
func Deanonymize(text string, records []span.Record, op cipher.Operator) (string, error) {
	entities := span.FromRecords(records)
	span.SortByStartDesc(entities)

	out := text
	limit := len(text)
	for _, e := range entities {
		if !e.Valid(limit) {
			return "", fmt.Errorf("record %s [%d,%d) does not fit transformed text: %w", e.EntityType, e.Start, e.End, cipher.ErrCipher)
		}
		plain, err := op.Decrypt(out[e.Start:e.End])
		if err != nil {
			return "", fmt.Errorf("decrypting %s at %d: %w", e.EntityType, e.Start, err)
		}
		out = splice(out, e.Start, e.End, plain)
		// The next record (to the left) must end at or before this start.
		limit = e.Start
	}
	return out, nil
}
