package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/session"
)

// Sessions creates and looks up proctoring sessions.
type Sessions interface {
	Create(participantID string, questions []models.Question, duration time.Duration) (*session.Controller, error)
	Get(id string) (*session.Controller, error)
	Result(ctx context.Context, id string) (*models.ExamResult, error)
}

// Deps are the router's collaborators.
type Deps struct {
	Sessions Sessions
	// Ready reports whether new sessions are accepted. Nil means always.
	Ready  func() bool
	Logger zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{sessions: deps.Sessions, ready: deps.Ready, logger: deps.Logger}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !h.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/consent", h.consent)
			r.Put("/answers/{questionID}", h.editAnswer)
			r.Post("/visibility", h.visibility)
			r.Put("/frame", h.frame)
			r.Post("/submit", h.submit)
			r.Get("/result", h.result)
			r.Get("/ws", h.clientChannel)
		})
	})

	return r
}
