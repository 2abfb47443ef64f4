package server

import (
	"errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/auth"
	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/server/handlers"
	servermw "github.com/daoyou-zhang/daoyoucode/internal/server/middleware"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	if !s.opts.DisableHealth {
		hm := s.opts.Health
		s.router.Get("/health", hm.HealthHandler)
		s.router.Get("/health/live", hm.LivenessHandler)
		s.router.Get("/health/ready", hm.ReadinessHandler)
		s.router.Get("/health/startup", hm.StartupHandler)
	}

	var skills func() []*skill.Skill
	if s.opts.Runtime != nil {
		skills = s.opts.Runtime.ListSkills
	}
	s.router.Get("/version", handlers.VersionHandler(s.opts.Build, skills))

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", s.MetricsHandler)

	if s.opts.Runtime != nil {
		s.registerAPI()
	}

	if s.opts.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
	}

	s.registerAdminEndpoint()
}

func (s *Server) registerAPI() {
	api := handlers.SkillHandlers{Runtime: s.opts.Runtime}

	s.router.Route("/v1", func(r chi.Router) {
		if s.opts.Auth != nil && s.opts.Auth.Secret != "" {
			r.Use(servermw.Authenticate(*s.opts.Auth, respondUnauthorized))
		} else {
			r.Use(servermw.TrustUserHeader)
		}

		r.Get("/skills", api.Skills)
		r.Post("/skills/{name}/execute", api.Execute)
		r.Post("/skills/{name}/followup", api.Followup)
		r.Get("/stats", api.Stats)
		r.Get("/stats/{name}", api.SkillStats)
		r.Get("/resilience", api.Resilience)
	})
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	message := "a valid bearer token is required"
	if errors.Is(err, auth.ErrTokenExpired) {
		message = "bearer token expired"
	}
	HandleError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeUnauthorized, nil, message))
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	// Create HTTP signal handler with bearer token auth and rate limiting
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
