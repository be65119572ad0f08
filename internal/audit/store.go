// Package audit keeps an HMAC-signed trail of anonymize and deanonymize calls.
//
// Events carry counts, entity types, and outcomes only. Raw text, detected
// values, and tokens are never written, so the trail holds no PII and cannot
// be used to reverse a session.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/audit")

// ErrEventNotFound is returned by Get for an unknown event id.
var ErrEventNotFound = errors.New("audit event not found")

// Operation names.
const (
	OperationAnonymize   = "anonymize"
	OperationDeanonymize = "deanonymize"
)

// Event is a single audited call.
type Event struct {
	ID              string    `json:"id"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Caller          string    `json:"caller,omitempty"`
	Operation       string    `json:"operation"`
	SessionID       string    `json:"session_id,omitempty"`
	InputLength     int       `json:"input_length"`
	EntitiesFound   int       `json:"entities_found"`
	EntitiesSkipped int       `json:"entities_skipped"`
	EntityTypes     []string  `json:"entity_types,omitempty"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	Signature       string    `json:"signature"`
}

// Store persists HMAC-signed audit events in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore opens (or creates) the audit database at dbPath.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		correlation_id TEXT,
		timestamp TIMESTAMP NOT NULL,
		operation TEXT NOT NULL,
		session_id TEXT,
		success BOOLEAN NOT NULL,
		event_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_events(operation);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record signs and stores ev, assigning an id and timestamp when unset.
func (s *Store) Record(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	// Timestamps are stored as text; one zone keeps range filters ordered.
	ev.Timestamp = ev.Timestamp.UTC()

	ctx, span := tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("audit.id", ev.ID),
			attribute.String("audit.operation", ev.Operation),
		))
	defer span.End()

	ev.Signature = ""
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	signature, err := s.signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("signing audit event: %w", err)
	}
	ev.Signature = signature

	query := `INSERT INTO audit_events (id, correlation_id, timestamp, operation, session_id, success, event_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.CorrelationID, ev.Timestamp, ev.Operation, ev.SessionID, ev.Success,
		string(payload), signature,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing audit event: %w", err)
	}
	return nil
}

// Get retrieves an event by id.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	ctx, span := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	ev, _, err := s.load(ctx, id)
	return ev, err
}

// Verify reports whether the stored event still matches its signature.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	ev, payload, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return s.signer.Verify(payload, ev.Signature), nil
}

func (s *Store) load(ctx context.Context, id string) (*Event, []byte, error) {
	var payload, signature string
	err := s.db.QueryRowContext(ctx, `SELECT event_json, signature FROM audit_events WHERE id = ?`, id).
		Scan(&payload, &signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%s: %w", id, ErrEventNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying audit event: %w", err)
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling audit event: %w", err)
	}
	ev.Signature = signature
	return &ev, []byte(payload), nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Operation string
	SessionID string
	From      time.Time
	To        time.Time
	Limit     int
}

// List returns events matching f, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Event, error) {
	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.String("audit.operation", f.Operation)))
	defer span.End()

	query := `SELECT event_json, signature FROM audit_events WHERE 1=1`
	args := []interface{}{}

	if f.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, f.Operation)
	}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if !f.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.To.UTC())
	}

	query += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	results := []Event{}
	for rows.Next() {
		var payload, signature string
		if err := rows.Scan(&payload, &signature); err != nil {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		ev.Signature = signature
		results = append(results, ev)
	}
	span.SetAttributes(attribute.Int("audit.count", len(results)))
	return results, rows.Err()
}
