// Package httpapi is the ingress surface: tenant registration, the
// generation endpoints and the task status endpoint. Handlers validate
// and translate; orchestration lives in the service package.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/auth"
	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/service"
)

// Registrar issues API keys. Implemented by auth.Registry; tests
// substitute mocks.
type Registrar interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.RegisterResult, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	Svc        *service.Service
	Auth       auth.Authenticator
	Registrar  Registrar
	RateLimits map[string]config.RateLimit
	Version    string
}

// Routes builds the router. Health and registration are public; every
// generation and status route requires an API key.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/auth/health", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Auth))

		for _, ep := range generateEndpoints {
			ep := ep
			r.With(s.rateLimit(ep.family)).Post("/generate/"+ep.path, s.handleGenerate(ep))
		}

		r.Get("/tasks/{internal_task_id}/status", s.handleStatus)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "genbridge",
		"version": s.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
