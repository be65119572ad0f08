package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/span"
)

// NewScanner returns the in-process scanner with the embedded recognizers.
func NewScanner(t *testing.T, opts ...detector.ScannerOption) *detector.Scanner {
	t.Helper()
	s, err := detector.NewScanner(opts...)
	require.NoError(t, err)
	return s
}

// StaticDetector returns fixed spans, or an error when Err is set. It records
// the last call so tests can assert on what the caller asked for.
type StaticDetector struct {
	Spans []span.Entity
	Err   error

	mu           sync.Mutex
	Calls        int
	LastEntities []string
	LastLanguage string
}

// Detect implements detector.Detector.
func (d *StaticDetector) Detect(_ context.Context, _ string, entities []string, language string) ([]span.Entity, error) {
	d.mu.Lock()
	d.Calls++
	d.LastEntities = entities
	d.LastLanguage = language
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]span.Entity, len(d.Spans))
	copy(out, d.Spans)
	return out, nil
}

// WordDetector marks every occurrence of each word in Words with its entity type.
type WordDetector struct {
	Words map[string]string // word -> entity type
}

// Detect implements detector.Detector.
func (d WordDetector) Detect(_ context.Context, text string, _ []string, _ string) ([]span.Entity, error) {
	var out []span.Entity
	for word, typ := range d.Words {
		for off := 0; ; {
			i := strings.Index(text[off:], word)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, span.Entity{EntityType: typ, Start: start, End: start + len(word), Score: 1})
			off = start + len(word)
		}
	}
	return out, nil
}
