package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthCheckTimeout bounds each component check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID, s.instrument, s.recoverPanics)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/valves/{n}/{action}", s.handleValveAction)
		r.Post("/pump/{action}", s.handlePumpAction)
		r.Post("/sensor/{action}", s.handleSensorAction)
		r.Post("/commands", s.handleCommand)

		r.Post("/reset", s.handleReset)
		r.Post("/test-sequence", s.handleTestSequence)

		r.Get("/ledger/{log}", s.handleLedger)
		r.Get("/history/{device}", s.handleHistory)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the server and each configured component. Any
// failing component turns the answer into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	status, code := "ok", http.StatusOK

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"valves":     s.ctrl.ValveCount(),
		"clients":    s.hub.ClientCount(),
		"components": components,
	})
}
