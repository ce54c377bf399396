// Package http is the webhook ingestion edge: it validates provider
// callbacks and hands the resulting events to the engine.
package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payhook/internal/event"
)

// maxCallbackBytes bounds the callback body read.
const maxCallbackBytes = 1 << 20

// Processor runs an event through the rule pipeline.
type Processor interface {
	Process(ctx context.Context, userID string, ev *event.Event)
}

// Handler serves the callback and health endpoints.
type Handler struct {
	engine Processor
	logger *slog.Logger

	// process decouples the ack from rule processing; replaced in tests.
	process func(ctx context.Context, userID string, ev *event.Event)
}

// NewHandler creates a Handler. Events are processed in the background
// so the provider gets its acknowledgment immediately; redeliveries of
// anything lost mid-flight are deduplicated by the idempotency guard.
func NewHandler(engine Processor, logger *slog.Logger) *Handler {
	h := &Handler{
		engine: engine,
		logger: logger,
	}
	h.process = func(ctx context.Context, userID string, ev *event.Event) {
		go engine.Process(context.WithoutCancel(ctx), userID, ev)
	}
	return h
}

// Register registers the ingestion routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/callback/{userID}", h.handleCallback)
	r.Get("/health", h.handleHealth)
}

// handleCallback validates the delivery and acks it. Validation
// failures are the caller's fault and get a 400; everything after the
// ack is the engine's problem.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	ev, err := event.ParseCallback(body)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected callback",
			"user_id", userID, "error", err)
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return
	}

	h.logger.InfoContext(ctx, "accepted callback",
		"user_id", userID,
		"event_id", ev.ID(),
		"event_type", ev.Type())

	h.process(ctx, userID, ev)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
