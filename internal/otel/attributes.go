package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys for anonymization requests. Names match the attributes
// emitted by earlier deployments so existing trace dashboards keep working.
const (
	InputLength            = attribute.Key("input_length")
	EntitiesFound          = attribute.Key("entities_found")
	EntitiesSkipped        = attribute.Key("entities_skipped")
	SessionID              = attribute.Key("session_id")
	AnonymizationSuccess   = attribute.Key("anonymization_success")
	DeanonymizationSuccess = attribute.Key("deanonymization_success")
	Error                  = attribute.Key("error")
)

// AnonymizeAttributes creates the attributes recorded after a successful anonymize call.
func AnonymizeAttributes(sessionID string, found, skipped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		SessionID.String(sessionID),
		EntitiesFound.Int(found),
		EntitiesSkipped.Int(skipped),
		AnonymizationSuccess.Bool(true),
	}
}
