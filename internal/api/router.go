package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentcontrol/hub/internal/api/handlers"
	"github.com/agentcontrol/hub/internal/api/middleware"
	"github.com/agentcontrol/hub/internal/config"
)

const serviceName = "agentcontrol-hub"

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OperatorExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Auth.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Operator-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	r.NotFound(handlers.NotFound)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	// Observer socket
	r.Get("/ws", h.WebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", h.ListEscalations)
			r.Post("/", h.CreateEscalation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEscalation)
				r.Patch("/", h.UpdateEscalation)
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.PostMessage)
			})
		})

		r.Route("/agent-sessions", func(r chi.Router) {
			r.Get("/", h.ListAgentSessions)
			r.Post("/", h.StartAgentSession)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", h.GetAgentSession)
				r.Post("/complete", h.CompleteAgentSession)
				r.Post("/terminate", h.TerminateAgentSession)
			})
		})

		r.Route("/agent-actions", func(r chi.Router) {
			r.Get("/", h.ListAgentActions)
			r.With(middleware.RateLimit(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst)).Post("/", h.RecordAgentAction)
		})

		r.Route("/threat-detections", func(r chi.Router) {
			r.Get("/", h.ListThreats)
			r.Post("/", h.ReportThreat)
			r.Post("/{id}/mitigate", h.MitigateThreat)
		})

		r.Route("/judge-evaluations", func(r chi.Router) {
			r.Get("/", h.ListJudgeEvaluations)
			r.Post("/", h.RecordJudgeEvaluation)
		})

		r.Get("/governance-dashboard", h.GovernanceDashboard)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}
