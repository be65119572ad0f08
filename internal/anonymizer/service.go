package anonymizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/detector"
	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/requestctx"
	"github.com/dativo-io/veil/internal/session"
	"github.com/dativo-io/veil/internal/span"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/anonymizer")

// EventSink receives one audit event per call. The audit store implements it.
type EventSink interface {
	Record(ctx context.Context, ev *audit.Event) error
}

// Config wires a Service.
type Config struct {
	Detector detector.Detector
	Operator cipher.Operator
	Cache    *session.Cache
	Entities []string // defaults to detector.DefaultEntities
	Language string   // defaults to detector.DefaultLanguage
	Sink     EventSink
	NewID    func() string // session id generator, defaults to uuid.NewString
}

// Service runs detection, anonymization and session bookkeeping for callers.
type Service struct {
	detector detector.Detector
	op       cipher.Operator
	cache    *session.Cache
	entities []string
	language string
	sink     EventSink
	newID    func() string
}

// AnonymizeResult is returned by Service.Anonymize.
type AnonymizeResult struct {
	SessionID string
	Text      string
	Records   []span.Record
	Skipped   []span.Entity
}

// NewService validates cfg and fills in defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Detector == nil {
		return nil, errors.New("anonymizer: detector is required")
	}
	if cfg.Operator == nil {
		return nil, errors.New("anonymizer: cipher operator is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("anonymizer: session cache is required")
	}
	s := &Service{
		detector: cfg.Detector,
		op:       cfg.Operator,
		cache:    cfg.Cache,
		entities: cfg.Entities,
		language: cfg.Language,
		sink:     cfg.Sink,
		newID:    cfg.NewID,
	}
	if len(s.entities) == 0 {
		s.entities = detector.DefaultEntities
	}
	if s.language == "" {
		s.language = detector.DefaultLanguage
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Cache returns the session cache backing the service.
func (s *Service) Cache() *session.Cache { return s.cache }

// Anonymize detects PII in text, replaces it with tokens and stores a new
// session so the call can be reversed with Deanonymize.
func (s *Service) Anonymize(ctx context.Context, text string) (res *AnonymizeResult, err error) {
	ctx, sp := tracer.Start(ctx, "anonymize_text")
	defer sp.End()
	sp.SetAttributes(veilotel.InputLength.Int(len(text)))

	ev := &audit.Event{Operation: audit.OperationAnonymize, InputLength: len(text)}
	defer func() {
		anonymizeRequests.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
		s.finish(ctx, sp, ev, err, veilotel.AnonymizationSuccess)
	}()

	if text == "" {
		return nil, fmt.Errorf("no text provided: %w", ErrValidation)
	}

	log.Debug().Str("text", text).Msg("anonymize_request")

	spans, err := s.detector.Detect(ctx, text, s.entities, s.language)
	if err != nil {
		if !errors.Is(err, ErrDetector) {
			err = fmt.Errorf("%w: %v", ErrDetector, err)
		}
		return nil, err
	}
	entitiesDetected.Add(ctx, int64(len(spans)))
	for _, e := range spans {
		if e.Valid(len(text)) {
			log.Debug().Str("entity_type", e.EntityType).Str("value", text[e.Start:e.End]).Float64("score", e.Score).Msg("entity_detected")
		}
	}
	ev.EntitiesFound = len(spans)
	ev.EntityTypes = span.Types(spans)

	out, err := Anonymize(text, spans, s.op)
	if err != nil {
		return nil, err
	}
	if len(out.Skipped) > 0 {
		entitiesSkipped.Add(ctx, int64(len(out.Skipped)))
		log.Debug().Int("skipped", len(out.Skipped)).Msg("overlapping_spans_skipped")
	}
	ev.EntitiesSkipped = len(out.Skipped)

	id := s.newID()
	s.cache.Put(id, out.Text, out.Records)
	sessionsStored.Add(ctx, 1)
	ev.SessionID = id

	sp.SetAttributes(veilotel.AnonymizeAttributes(id, len(spans), len(out.Skipped))...)
	log.Info().
		Str("session_id", id).
		Int("entities_found", len(spans)).
		Int("entities_skipped", len(out.Skipped)).
		Func(veilotel.LogRequestFields(ctx)).
		Msg("anonymize_completed")

	return &AnonymizeResult{
		SessionID: id,
		Text:      out.Text,
		Records:   out.Records,
		Skipped:   out.Skipped,
	}, nil
}

// Deanonymize restores the original text of a stored session.
func (s *Service) Deanonymize(ctx context.Context, sessionID string) (text string, err error) {
	ctx, sp := tracer.Start(ctx, "deanonymize_session")
	defer sp.End()
	sp.SetAttributes(veilotel.SessionID.String(sessionID))

	ev := &audit.Event{Operation: audit.OperationDeanonymize, SessionID: sessionID}
	defer func() {
		deanonymizeRequests.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
		s.finish(ctx, sp, ev, err, veilotel.DeanonymizationSuccess)
	}()

	if sessionID == "" {
		return "", fmt.Errorf("empty session id: %w", ErrSessionNotFound)
	}
	sess, err := s.cache.Get(sessionID)
	if err != nil {
		return "", fmt.Errorf("session %q: %w", sessionID, err)
	}
	ev.InputLength = len(sess.Text)
	ev.EntitiesFound = len(sess.Records)

	text, err = Deanonymize(sess.Text, sess.Records, s.op)
	if err != nil {
		return "", err
	}

	log.Debug().Str("session_id", sessionID).Str("text", text).Msg("deanonymized_text")
	log.Info().
		Str("session_id", sessionID).
		Int("records", len(sess.Records)).
		Func(veilotel.LogRequestFields(ctx)).
		Msg("deanonymize_completed")
	return text, nil
}

// finish records the outcome on the span and hands the audit event to the sink.
// Sink failures are logged and never change the call's result.
func (s *Service) finish(ctx context.Context, sp trace.Span, ev *audit.Event, err error, successKey attribute.Key) {
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
		sp.SetAttributes(successKey.Bool(false), veilotel.Error.String(err.Error()))
		log.Warn().Err(err).Str("operation", ev.Operation).Func(veilotel.LogRequestFields(ctx)).Msg("request_failed")
	} else {
		sp.SetAttributes(successKey.Bool(true))
	}

	if s.sink == nil {
		return
	}
	ev.Caller = requestctx.Caller(ctx)
	ev.CorrelationID = requestctx.CorrelationID(ctx)
	if serr := s.sink.Record(ctx, ev); serr != nil {
		log.Warn().Err(serr).Str("operation", ev.Operation).Msg("audit_record_failed")
	}
}
