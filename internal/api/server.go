// Package api exposes the HTTP surface: the PBX notification webhook, the
// greeting toggle, and read-only user queries.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/karmatek/vmrelay/internal/api/middleware"
	"github.com/karmatek/vmrelay/internal/pipeline"
	"github.com/karmatek/vmrelay/internal/ucxn"
)

// Processor accepts one voicemail job for asynchronous processing.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) error
}

// Directory is the PBX user directory the query endpoints read from.
type Directory interface {
	ListUsers(ctx context.Context) ([]ucxn.User, error)
	UserObjectID(ctx context.Context, alias string) (string, error)
	GetUser(ctx context.Context, objectID string) (ucxn.User, error)
	AlternateGreeting(ctx context.Context, callHandlerID string) (ucxn.Greeting, error)
}

// Toggler runs the greeting toggle flow.
type Toggler interface {
	Toggle(ctx context.Context, callHandlerID string, enable bool, message string) ([]byte, error)
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	processor Processor
	directory Directory
	toggler   Toggler
	version   string

	webhookLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(processor Processor, directory Directory, toggler Toggler, version string) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		processor:      processor,
		directory:      directory,
		toggler:        toggler,
		version:        version,
		webhookLimiter: middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background middleware goroutines.
func (s *Server) Close() {
	s.webhookLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.StructuredLogger)

	r.Get("/", s.handlePing)

	// The PBX posts message event notifications here. Rate limited so a
	// misbehaving subscription cannot flood the pipeline.
	r.With(middleware.RateLimit(s.webhookLimiter)).Post("/callback", s.handleCallback)

	r.Route("/ucxn/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		// {id} is a mailbox alias on GET and a call handler object id on
		// the greeting route.
		r.Get("/{id}", s.handleGetUser)
		r.Post("/{id}/greeting", s.handleGreeting)
	})

	slog.Info("api routes mounted")
}

// handlePing reports liveness and the running version. Unauthenticated.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
