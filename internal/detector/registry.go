package detector

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/veil/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Pattern is a compiled, ready-to-use detection pattern.
type Pattern struct {
	Recognizer   string
	Name         string
	EntityType   string
	Regex        *regexp.Regexp
	Score        float64
	Languages    []string // empty means every language
	ContextWords map[string][]string
}

// supports reports whether the pattern applies to language.
func (p Pattern) supports(language string) bool {
	if len(p.Languages) == 0 || language == "" {
		return true
	}
	for _, l := range p.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// defaultDenyListScore is Presidio's score for deny-list matches.
const defaultDenyListScore = 1.0

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii_en.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIENYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// ParseRecognizerFile validates recognizer YAML against the recognizer schema
// and parses it into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	if err := ValidateRecognizerSchema(data); err != nil {
		return nil, err
	}
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	rf, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

// MergeRecognizers merges layers in order. Later layers override earlier ones
// by matching on Name; new recognizers are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}

// FilterByEntities keeps only recognizers for the given entity types.
// An empty list keeps everything.
func FilterByEntities(recognizers []RecognizerConfig, entities []string) []RecognizerConfig {
	if len(entities) == 0 {
		return recognizers
	}
	allowed := make(map[string]bool, len(entities))
	for _, e := range entities {
		allowed[e] = true
	}
	var filtered []RecognizerConfig
	for _, r := range recognizers {
		if allowed[r.SupportedEntity] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CompilePatterns converts recognizer configs into runtime patterns. Disabled
// recognizers are skipped. Each regex produces one Pattern; a deny list
// produces a single word-boundary alternation.
func CompilePatterns(recognizers []RecognizerConfig) ([]Pattern, error) {
	var out []Pattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		langs, ctxWords := languageContext(rec.SupportedLanguages)

		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			out = append(out, Pattern{
				Recognizer:   rec.Name,
				Name:         p.Name,
				EntityType:   rec.SupportedEntity,
				Regex:        compiled,
				Score:        p.Score,
				Languages:    langs,
				ContextWords: ctxWords,
			})
		}

		if len(rec.DenyList) > 0 {
			score := rec.DenyListScore
			if score == 0 {
				score = defaultDenyListScore
			}
			out = append(out, Pattern{
				Recognizer:   rec.Name,
				Name:         rec.Name + "_deny_list",
				EntityType:   rec.SupportedEntity,
				Regex:        denyListRegex(rec.DenyList),
				Score:        score,
				Languages:    langs,
				ContextWords: ctxWords,
			})
		}
	}

	return out, nil
}

func denyListRegex(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func languageContext(langs []LanguageContext) ([]string, map[string][]string) {
	if len(langs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(langs))
	ctx := make(map[string][]string, len(langs))
	for _, l := range langs {
		names = append(names, l.Language)
		if len(l.Context) > 0 {
			ctx[strings.ToLower(l.Language)] = l.Context
		}
	}
	return names, ctx
}
