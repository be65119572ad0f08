package detector

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/span"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/detector")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence threshold.
	// Matches below this score are discarded unless boosted by context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and after
	// a match when looking for context words.
	ContextWindowChars = 100
)

// Scanner detects PII in-process using recognizer patterns.
type Scanner struct {
	patterns []Pattern
	minScore float64
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile string
	entities    []string
	minScore    float64
}

// WithMinScore overrides the default minimum confidence threshold for matches.
func WithMinScore(score float64) ScannerOption {
	return func(c *scannerConfig) { c.minScore = score }
}

// WithPatternFile loads additional recognizers from a YAML file layered over
// the embedded defaults. If the file does not exist, it is silently skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEntities restricts the scanner to recognizers for the given entity types.
// Empty keeps every recognizer.
func WithEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.entities = entities }
}

// NewScanner creates a scanner. Without options it uses the embedded defaults.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fileRecs []RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = rf.Recognizers
		}
	}

	recognizers := FilterByEntities(MergeRecognizers(defaults, fileRecs), cfg.entities)
	compiled, err := CompilePatterns(recognizers)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScore > 0 {
		minScore = cfg.minScore
	}

	return &Scanner{patterns: compiled, minScore: minScore}, nil
}

// Detect returns spans of the requested entity types (all loaded types when
// entities is empty) for recognizers supporting language. Identical spans found by more
// than one pattern are collapsed, keeping the highest score. Overlapping spans
// of different extent are all returned; resolving them is the caller's job.
func (s *Scanner) Detect(ctx context.Context, text string, entities []string, language string) ([]span.Entity, error) {
	_, sp := tracer.Start(ctx, "detector.scan")
	defer sp.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetector, err)
	}

	wanted := make(map[string]bool, len(entities))
	for _, e := range entities {
		wanted[e] = true
	}

	type key struct {
		entityType string
		start, end int
	}
	best := make(map[key]int)
	results := []span.Entity{}

	for _, p := range s.patterns {
		if len(wanted) > 0 && !wanted[p.EntityType] {
			continue
		}
		if !p.supports(language) {
			continue
		}
		for _, m := range p.Regex.FindAllStringIndex(text, -1) {
			confidence := enhanceScoreWithContext(text, m[0], m[1], p.Score, p.ContextWords[strings.ToLower(language)])
			if confidence < s.minScore {
				continue
			}
			k := key{p.EntityType, m[0], m[1]}
			if idx, seen := best[k]; seen {
				if confidence > results[idx].Score {
					results[idx].Score = confidence
				}
				continue
			}
			best[k] = len(results)
			results = append(results, span.Entity{
				EntityType: p.EntityType,
				Start:      m[0],
				End:        m[1],
				Score:      confidence,
			})
		}
	}

	sp.SetAttributes(
		attribute.Int("pii.entity_count", len(results)),
		attribute.String("pii.language", language),
	)
	return results, nil
}

// enhanceScoreWithContext boosts a match's base score if a context word is
// found within ContextWindowChars bytes of the match, capped at 1.0.
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	lo := start - ContextWindowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextWindowChars
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > 1.0 {
				boosted = 1.0
			}
			return boosted
		}
	}
	return baseScore
}
