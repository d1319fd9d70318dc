// Package ingress exposes the HTTP intake. It performs only cheap checks,
// required fields and the IP blocklist, then hands the raw payload to the
// parser topic. Normalization and persistence happen downstream.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aegis-soar/internal/schema"
)

// Envelope wraps a raw payload for the parser topic.
type Envelope struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail_type"`
	Detail     json.RawMessage `json:"detail"`
}

// Publisher produces one message to the parser topic. Satisfied by
// *kafka.Producer.
type Publisher interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Blocklist reports whether a source IP is blocked. Satisfied by
// *intel.Blocklist.
type Blocklist interface {
	Contains(ctx context.Context, ip string) (bool, error)
}

// Handler handles HTTP event intake.
type Handler struct {
	publisher  Publisher
	blocklist  Blocklist
	logger     *slog.Logger
	maxPayload int
	startTime  time.Time

	accepted uint64
	rejected uint64
	blocked  uint64
}

// NewHandler creates an intake Handler. blocklist may be nil, disabling the
// check.
func NewHandler(publisher Publisher, blocklist Blocklist, logger *slog.Logger) *Handler {
	return &Handler{
		publisher:  publisher,
		blocklist:  blocklist,
		logger:     logger,
		maxPayload: 1 << 20,
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum payload size in bytes.
func (h *Handler) WithMaxPayload(size int) *Handler {
	if size > 0 {
		h.maxPayload = size
	}
	return h
}

// Routes returns the intake mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", h.HandleEvent)
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)
	return mux
}

// IntakeResponse is the response for event intake.
type IntakeResponse struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id"`
}

// HandleEvent handles POST /v1/events.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			h.reject(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		h.reject(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	inbound, err := schema.DecodeInbound(body)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "invalid JSON payload", requestID)
		return
	}

	if msg := missingFields(inbound); msg != "" {
		h.reject(w, http.StatusBadRequest, msg, requestID)
		return
	}

	if h.blocklist != nil {
		blocked, err := h.blocklist.Contains(r.Context(), inbound.SourceIP)
		if err != nil {
			// Blocklist outage must not stop intake.
			h.logger.Warn("blocklist check unavailable, accepting event",
				"source_ip", inbound.SourceIP,
				"error", err)
		} else if blocked {
			atomic.AddUint64(&h.blocked, 1)
			h.logger.Info("rejected event from blocked source",
				"source_ip", inbound.SourceIP,
				"event_name", inbound.EventName,
				"request_id", requestID)
			h.reject(w, http.StatusForbidden, "source IP is blocked", requestID)
			return
		}
	}

	env := Envelope{
		Source:     "aegis.intake",
		DetailType: inbound.EventName,
		Detail:     json.RawMessage(inbound.Raw),
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.reject(w, http.StatusInternalServerError, "internal error", requestID)
		return
	}

	if err := h.publisher.Produce(r.Context(), []byte(inbound.SourceIP), data); err != nil {
		h.logger.Error("failed to enqueue event",
			"event_name", inbound.EventName,
			"request_id", requestID,
			"error", err)
		h.reject(w, http.StatusServiceUnavailable, "event queue unavailable", requestID)
		return
	}

	atomic.AddUint64(&h.accepted, 1)
	respondJSON(w, http.StatusAccepted, IntakeResponse{
		Success:   true,
		RequestID: requestID,
	})
}

// missingFields returns a reject message naming absent required fields, or
// empty when the payload is complete.
func missingFields(in *schema.Inbound) string {
	var missing []string
	if in.EventName == "" {
		missing = append(missing, "event_type")
	}
	if in.SourceIP == "" || in.SourceIP == schema.UnknownSource {
		missing = append(missing, "source_ip")
	}
	if in.UserIdentity["username"] == "" {
		missing = append(missing, "username")
	}
	if in.Timestamp == 0 {
		missing = append(missing, "timestamp")
	}
	if len(missing) == 0 {
		return ""
	}
	msg := "missing required fields:"
	for _, f := range missing {
		msg += " " + f
	}
	return msg
}

func (h *Handler) reject(w http.ResponseWriter, status int, message, requestID string) {
	atomic.AddUint64(&h.rejected, 1)
	respondJSON(w, status, IntakeResponse{
		Success:   false,
		Error:     message,
		RequestID: requestID,
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"events_accepted": atomic.LoadUint64(&h.accepted),
		"events_rejected": atomic.LoadUint64(&h.rejected),
		"events_blocked":  atomic.LoadUint64(&h.blocked),
		"uptime_seconds":  int(time.Since(h.startTime).Seconds()),
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
