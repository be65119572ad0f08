// Package span defines the canonical shapes exchanged between the entity
// detector, the anonymization pipelines, and the session cache.
package span

import "sort"

// Entity is a detected PII region. Start and End are byte offsets into the
// text the detector ran against, with 0 <= Start < End <= len(text).
type Entity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score,omitempty"` // detector confidence; informational only
}

// Record locates a token inside transformed text. Same shape as Entity but its
// offsets are in the transformed text's coordinate space.
type Record struct {
	EntityType string `json:"entity_type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ToRecord converts a span into its serializable record form.
func ToRecord(e Entity) Record {
	return Record{EntityType: e.EntityType, Start: e.Start, End: e.End}
}

// FromRecord converts a stored record back into a span usable by the inverse
// cipher step.
func FromRecord(r Record) Entity {
	return Entity{EntityType: r.EntityType, Start: r.Start, End: r.End}
}

// Len returns the span length in bytes.
func (e Entity) Len() int { return e.End - e.Start }

// Valid reports whether the span fits inside a text of textLen bytes.
func (e Entity) Valid(textLen int) bool {
	return e.Start >= 0 && e.Start < e.End && e.End <= textLen
}

// Overlaps reports whether the two spans share at least one byte.
// Adjacent spans (a.End == b.Start) do not overlap.
func (e Entity) Overlaps(o Entity) bool {
	return e.Start < o.End && o.Start < e.End
}

// SortByStart orders spans by start ascending, longer span first on ties.
// This is the placement priority used when resolving overlaps.
func SortByStart(spans []Entity) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
}

// SortByStartDesc orders spans right-to-left, the order substitutions are
// spliced in so offsets of not-yet-processed spans stay valid.
func SortByStartDesc(spans []Entity) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start > spans[j].Start
	})
}

// FromRecords converts a slice of records.
func FromRecords(records []Record) []Entity {
	out := make([]Entity, len(records))
	for i, r := range records {
		out[i] = FromRecord(r)
	}
	return out
}

// Types returns the entity types of spans in order, for logging and audit.
func Types(spans []Entity) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.EntityType
	}
	return out
}
