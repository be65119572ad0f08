package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/span"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).String(),
		"sessions": s.service.Cache().Len(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"session_cache": "ok",
			"audit_store":   "disabled",
			"auth":          "disabled",
			"rate_limit":    "disabled",
		}
		if s.auditStore != nil {
			components["audit_store"] = "ok"
		}
		if len(s.apiKeys) > 0 {
			components["auth"] = "ok"
		}
		if s.rateLimiter != nil {
			components["rate_limit"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type anonymizeRequest struct {
	Text string `json:"text"`
}

type anonymizeResponse struct {
	Result    string        `json:"result"`
	Items     []span.Record `json:"items"`
	SessionID string        `json:"session_id"`
	Skipped   []span.Entity `json:"skipped,omitempty"`
}

func (s *Server) handleAnonymizeText(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.service.Anonymize(r.Context(), req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, anonymizeResponse{
		Result:    res.Text,
		Items:     res.Records,
		SessionID: res.SessionID,
		Skipped:   res.Skipped,
	})
}

type deanonymizeRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleDeanonymizeSession(w http.ResponseWriter, r *http.Request) {
	var req deanonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	text, err := s.service.Deanonymize(r.Context(), req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": text})
}

// decode reads a JSON body into v. An empty body decodes to the zero value so
// missing fields surface as the endpoint's own validation error.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
	return false
}

// writeServiceError maps the anonymizer failure taxonomy to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, anonymizer.ErrValidation):
		writeError(w, http.StatusBadRequest, "no text provided")
	case errors.Is(err, anonymizer.ErrSessionNotFound):
		writeError(w, http.StatusBadRequest, "invalid session_id")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request_error")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	f := audit.ListFilter{
		Operation: q.Get("operation"),
		SessionID: q.Get("session_id"),
		Limit:     limit,
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: expected RFC3339 timestamp")
		return
	}
	if f.To, err = parseTimeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: expected RFC3339 timestamp")
		return
	}
	events, err := s.auditStore.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	ev, err := s.auditStore.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, audit.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	id := chi.URLParam(r, "id")
	valid, err := s.auditStore.Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

// parseTimeParam parses an optional RFC3339 query value. Empty yields the zero time.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
