package http

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the service router with the standard middleware
// chain and the metrics endpoint.
func NewRouter(h *Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	h.Register(r)
	r.Method("GET", "/metrics", promhttp.Handler())
	return r
}
