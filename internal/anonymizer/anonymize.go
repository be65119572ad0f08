// Package anonymizer replaces detected PII spans with reversible tokens and
// restores them later from a cached session.
package anonymizer

import (
	"fmt"
	"strings"

	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/span"
)

// Result is the output of Anonymize.
type Result struct {
	Text    string
	Records []span.Record // transformed-text offsets, ascending by start
	Skipped []span.Entity // overlapping spans that were not applied
}

// Anonymize encrypts every applicable span of text with op.
//
// Spans are ranked by start ascending, longer first on ties; a span overlapping
// an already accepted one is skipped and reported in Result.Skipped. Accepted
// spans are spliced right-to-left so the offsets of spans still to be processed
// stay valid while token lengths change the text.
func Anonymize(text string, spans []span.Entity, op cipher.Operator) (*Result, error) {
	for _, s := range spans {
		if !s.Valid(len(text)) {
			return nil, fmt.Errorf("%s [%d,%d) in text of length %d: %w", s.EntityType, s.Start, s.End, len(text), ErrInvalidSpan)
		}
	}

	applied, skipped := selectSpans(spans)
	span.SortByStartDesc(applied)

	out := text
	records := make([]span.Record, 0, len(applied))
	for _, s := range applied {
		token, err := op.Encrypt(out[s.Start:s.End])
		if err != nil {
			return nil, fmt.Errorf("encrypting %s span: %w", s.EntityType, err)
		}
		out = splice(out, s.Start, s.End, token)

		// Everything recorded so far lies to the right of this span and moves
		// by the length difference.
		delta := len(token) - s.Len()
		for i := range records {
			records[i].Start += delta
			records[i].End += delta
		}
		rec := span.ToRecord(s)
		rec.End = s.Start + len(token)
		records = append(records, rec)
	}

	reverse(records)
	return &Result{Text: out, Records: records, Skipped: skipped}, nil
}

// selectSpans applies the overlap policy: first placed wins, overlapping
// followers are skipped. Adjacent spans are both kept.
func selectSpans(spans []span.Entity) (applied, skipped []span.Entity) {
	ordered := make([]span.Entity, len(spans))
	copy(ordered, spans)
	span.SortByStart(ordered)

	for _, s := range ordered {
		// Ordering guarantees only the last accepted span can reach s.
		if n := len(applied); n > 0 && applied[n-1].Overlaps(s) {
			skipped = append(skipped, s)
			continue
		}
		applied = append(applied, s)
	}
	return applied, skipped
}

func splice(text string, start, end int, replacement string) string {
	var b strings.Builder
	b.Grow(len(text) - (end - start) + len(replacement))
	b.WriteString(text[:start])
	b.WriteString(replacement)
	b.WriteString(text[end:])
	return b.String()
}

func reverse(records []span.Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
