package anonymizer

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/veil/internal/anonymizer")

var (
	anonymizeRequests   metric.Int64Counter
	deanonymizeRequests metric.Int64Counter
	entitiesDetected    metric.Int64Counter
	entitiesSkipped     metric.Int64Counter
	sessionsStored      metric.Int64Counter
)

func init() {
	var err error
	anonymizeRequests, err = meter.Int64Counter("veil.anonymize.requests",
		metric.WithDescription("Anonymize calls by outcome"))
	if err != nil {
		anonymizeRequests, _ = meter.Int64Counter("veil.anonymize.requests.fallback")
	}

	deanonymizeRequests, err = meter.Int64Counter("veil.deanonymize.requests",
		metric.WithDescription("Deanonymize calls by outcome"))
	if err != nil {
		deanonymizeRequests, _ = meter.Int64Counter("veil.deanonymize.requests.fallback")
	}

	entitiesDetected, err = meter.Int64Counter("veil.entities.detected",
		metric.WithDescription("Entity spans returned by the detector"))
	if err != nil {
		entitiesDetected, _ = meter.Int64Counter("veil.entities.detected.fallback")
	}

	entitiesSkipped, err = meter.Int64Counter("veil.entities.skipped",
		metric.WithDescription("Overlapping spans dropped by the anonymization pipeline"))
	if err != nil {
		entitiesSkipped, _ = meter.Int64Counter("veil.entities.skipped.fallback")
	}

	sessionsStored, err = meter.Int64Counter("veil.sessions.stored",
		metric.WithDescription("Sessions written to the cache"))
	if err != nil {
		sessionsStored, _ = meter.Int64Counter("veil.sessions.stored.fallback")
	}
}
