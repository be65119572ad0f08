package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/otel"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Server holds all dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	service      *anonymizer.Service
	auditStore   *audit.Store
	apiKeys      map[string]string
	corsOrigins  []string
	rateLimiter  *RateLimiter
	maxBodyBytes int64
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the /v1/audit endpoints.
func WithAuditStore(store *audit.Store) Option {
	return func(s *Server) { s.auditStore = store }
}

// WithAPIKeys requires one of the given keys (key -> caller name) on every
// API route. An empty map leaves the API open.
func WithAPIKeys(keys map[string]string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"] for any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimiter installs a limiter built by the caller, typically one whose
// idle clients are swept on a schedule. nil disables limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer builds a Server around the anonymization service.
func NewServer(service *anonymizer.Service, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		service:      service,
		corsOrigins:  []string{"*"},
		maxBodyBytes: defaultMaxBodyBytes,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.rateLimiter))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/anonymize/text", s.handleAnonymizeText)
		r.Post("/deanonymize/session", s.handleDeanonymizeSession)

		r.Get("/v1/audit", s.handleAuditList)
		r.Get("/v1/audit/{id}", s.handleAuditGet)
		r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
	})

	return r
}
