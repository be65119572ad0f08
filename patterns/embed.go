// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer format.
package patterns

import _ "embed"

//go:embed pii_en.yaml
var piiENYAML []byte

// PIIENYAML returns the embedded default PII recognizer definitions.
func PIIENYAML() []byte { return piiENYAML }
