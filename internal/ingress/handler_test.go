package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aegis-soar/internal/config"
)

type fakePublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (f *fakePublisher) Produce(_ context.Context, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, string(key))
	f.values = append(f.values, value)
	return nil
}

type fakeBlocklist struct {
	blocked map[string]bool
	err     error
}

func (f *fakeBlocklist) Contains(_ context.Context, ip string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.blocked[ip], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validBody() string {
	return `{
		"event_type": "failed_login",
		"source_ip": "203.0.113.7",
		"username": "alice",
		"timestamp": 1700000000,
		"severity": "LOW"
	}`
}

func postEvent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleEventAccepted(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler(pub, &fakeBlocklist{}, discardLogger())

	w := postEvent(t, h.Routes(), validBody())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body.String())
	}

	if len(pub.values) != 1 {
		t.Fatalf("produced %d messages, want 1", len(pub.values))
	}
	if pub.keys[0] != "203.0.113.7" {
		t.Fatalf("message key = %s, want source IP", pub.keys[0])
	}

	var env Envelope
	if err := json.Unmarshal(pub.values[0], &env); err != nil {
		t.Fatalf("envelope unmarshal: %v", err)
	}
	if env.DetailType != "failed_login" {
		t.Fatalf("DetailType = %s", env.DetailType)
	}
	var detail map[string]any
	if err := json.Unmarshal(env.Detail, &detail); err != nil {
		t.Fatalf("detail unmarshal: %v", err)
	}
	if detail["source_ip"] != "203.0.113.7" {
		t.Fatalf("detail = %v", detail)
	}
}

func TestHandleEventMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no event type", `{"source_ip":"1.2.3.4","username":"a","timestamp":1700000000}`, "event_type"},
		{"no source ip", `{"event_type":"failed_login","username":"a","timestamp":1700000000}`, "source_ip"},
		{"no username", `{"event_type":"failed_login","source_ip":"1.2.3.4","timestamp":1700000000}`, "username"},
		{"no timestamp", `{"event_type":"failed_login","source_ip":"1.2.3.4","username":"a"}`, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			h := NewHandler(pub, nil, discardLogger())

			w := postEvent(t, h.Routes(), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Fatalf("body %q does not name %s", w.Body.String(), tt.want)
			}
			if len(pub.values) != 0 {
				t.Fatal("rejected event must not be produced")
			}
		})
	}
}

func TestHandleEventBlockedSource(t *testing.T) {
	pub := &fakePublisher{}
	bl := &fakeBlocklist{blocked: map[string]bool{"203.0.113.7": true}}
	h := NewHandler(pub, bl, discardLogger())

	w := postEvent(t, h.Routes(), validBody())
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(pub.values) != 0 {
		t.Fatal("blocked event must not be produced")
	}
}

func TestHandleEventBlocklistOutageFailsOpen(t *testing.T) {
	pub := &fakePublisher{}
	bl := &fakeBlocklist{err: errors.New("redis down")}
	h := NewHandler(pub, bl, discardLogger())

	w := postEvent(t, h.Routes(), validBody())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 when blocklist is unavailable", w.Code)
	}
}

func TestHandleEventQueueUnavailable(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	h := NewHandler(pub, nil, discardLogger())

	w := postEvent(t, h.Routes(), validBody())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleEventInvalidJSON(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, discardLogger())

	w := postEvent(t, h.Routes(), "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleEventPayloadTooLarge(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, discardLogger()).WithMaxPayload(64)

	big := `{"event_type":"failed_login","source_ip":"1.2.3.4","username":"a","timestamp":1700000000,"description":"` +
		strings.Repeat("x", 256) + `"}`
	w := postEvent(t, h.Routes(), big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.IngressConfig{
		Auth: config.AuthConfig{
			Enabled:      true,
			APIKeyHeader: "X-API-Key",
			APIKeys:      []string{"secret-key"},
		},
	}
	h := NewHandler(&fakePublisher{}, nil, discardLogger())
	wrapped := WithMiddleware(h.Routes(), cfg, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody()))
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody()))
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody()))
	req.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status with valid key = %d, want 202", w.Code)
	}

	// Health stays open without a key.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		RequestsPerIP: 2,
		WindowSize:    time.Minute,
		CleanupPeriod: time.Minute,
	}, discardLogger())
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		allowed, _, _ := rl.Allow("10.0.0.1")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if allowed, _, _ := rl.Allow("10.0.0.1"); allowed {
		t.Fatal("third request should be limited")
	}

	// Other clients have their own budget.
	if allowed, _, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Fatal("distinct IP should be allowed")
	}
}

func TestRateLimitMiddlewareResponse(t *testing.T) {
	cfg := config.IngressConfig{
		RateLimit: config.RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 1,
			WindowSize:    time.Minute,
			CleanupPeriod: time.Minute,
		},
	}
	h := NewHandler(&fakePublisher{}, nil, discardLogger())
	wrapped := WithMiddleware(h.Routes(), cfg, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody()))
	req.RemoteAddr = "10.0.0.3:12345"
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody()))
	req.RemoteAddr = "10.0.0.3:12345"
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 response must carry Retry-After")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "192.0.2.1" {
		t.Fatalf("untrusted proxy: got %s", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %s", got)
	}
}
