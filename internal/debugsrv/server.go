// Package debugsrv exposes a scheduler's debug operations over HTTP. Every
// scheduler access is marshalled onto the host loop through a Caller.
package debugsrv

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"framesched/internal/sched"
)

// Caller runs fn on the goroutine that owns the scheduler and waits for it.
// host.Loop implements it.
type Caller interface {
	Call(ctx context.Context, fn func() error) error
}

// Server is the debug HTTP surface.
type Server struct {
	router chi.Router
	logger *slog.Logger
	caller Caller
	sched  *sched.Scheduler
	jobs   *jobTable
}

// New creates a Server with all routes registered.
func New(s *sched.Scheduler, caller Caller, logger *slog.Logger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		logger: logger.With("component", "debugsrv"),
		caller: caller,
		sched:  s,
		jobs:   newJobTable(maxJobs),
	}
	srv.routes()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleSubmitTask)
		r.Get("/next", s.handleNextTask)
		r.Get("/{id}", s.handleGetJob)
		r.Delete("/{id}", s.handleCancelTask)
	})
}

// onLoop runs fn through the caller with the request's context.
func (s *Server) onLoop(r *http.Request, fn func() error) error {
	return s.caller.Call(r.Context(), fn)
}
