package detector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// recognizerSchema is the JSON Schema for recognizer YAML files.
const recognizerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Recognizer registry",
  "type": "object",
  "required": ["recognizers"],
  "properties": {
    "recognizers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "supported_entity"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "supported_entity": {"type": "string", "pattern": "^[A-Z][A-Z0-9_]*$"},
          "enabled": {"type": "boolean"},
          "patterns": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "regex", "score"],
              "properties": {
                "name": {"type": "string"},
                "regex": {"type": "string", "minLength": 1},
                "score": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "supported_languages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["language"],
              "properties": {
                "language": {"type": "string", "minLength": 2},
                "context": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "deny_list": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "deny_list_score": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "anyOf": [
          {"required": ["patterns"]},
          {"required": ["deny_list"]}
        ]
      }
    }
  }
}`

// ValidateRecognizerSchema checks recognizer YAML against recognizerSchema.
func ValidateRecognizerSchema(yamlBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(recognizerSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, verr := range result.Errors() {
			fmt.Fprintf(&b, "- %s\n", verr)
		}
		return fmt.Errorf("recognizer schema validation errors:\n%s", b.String())
	}
	return nil
}

// normalizeYAML converts map[interface{}]interface{} (possible for non-string
// keys) into map[string]interface{} recursively so it can be JSON-encoded.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
