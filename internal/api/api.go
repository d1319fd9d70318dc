// Package api exposes the read-only query surface over the event store.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aegis-soar/internal/config"
	"aegis-soar/internal/schema"
	"aegis-soar/internal/store"
)

// EventReader is the store surface the API needs. Satisfied by
// *store.EventStore.
type EventReader interface {
	GetByID(ctx context.Context, eventID string) (*schema.Event, error)
	List(ctx context.Context, limit int, severity schema.Severity) ([]*schema.Event, error)
	Stats(ctx context.Context) (*store.SeverityStats, error)
}

// Pinger reports store reachability. Satisfied by *store.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the read API.
type Handler struct {
	events EventReader
	pinger Pinger
	cfg    config.APIConfig
	logger *slog.Logger
}

// NewHandler creates the read API handler.
func NewHandler(events EventReader, pinger Pinger, cfg config.APIConfig, logger *slog.Logger) *Handler {
	return &Handler{events: events, pinger: pinger, cfg: cfg, logger: logger}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /api/events", h.ListEvents)
	mux.HandleFunc("GET /api/events/{id}", h.GetEvent)
	mux.HandleFunc("GET /api/stats", h.Stats)
	return mux
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready. Not ready means the store is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "event store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListEvents handles GET /api/events with optional limit and severity
// filters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if h.cfg.MaxPageSize > 0 && limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	var severity schema.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity = schema.Severity(raw)
		if !severity.IsValid() {
			writeError(w, http.StatusBadRequest, "severity must be LOW, MEDIUM, or HIGH")
			return
		}
	}

	events, err := h.events.List(r.Context(), limit, severity)
	if err != nil {
		h.logger.Error("event list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// GetEvent handles GET /api/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "event id is required")
		return
	}

	ev, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("event lookup failed", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.events.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
