package ingress

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"aegis-soar/internal/config"
)

// WithMiddleware wraps the intake mux with the standard middleware stack.
// Applied in reverse order, so recovery runs outermost.
func WithMiddleware(handler http.Handler, cfg config.IngressConfig, logger *slog.Logger) http.Handler {
	h := handler

	if cfg.RateLimit.Enabled {
		h = rateLimitMiddleware(h, cfg.RateLimit, logger)
	}
	if cfg.Auth.Enabled {
		h = authMiddleware(h, cfg.Auth)
	}
	h = loggingMiddleware(h, logger)
	h = recoveryMiddleware(h, logger)

	return h
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware checks the API key header. Health and metrics stay open.
func authMiddleware(next http.Handler, authCfg config.AuthConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(authCfg.APIKeyHeader)
		if apiKey == "" {
			http.Error(w, `{"success":false,"error":"missing API key"}`, http.StatusUnauthorized)
			return
		}

		for _, key := range authCfg.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, `{"success":false,"error":"invalid API key"}`, http.StatusUnauthorized)
	})
}

// recoveryMiddleware recovers from handler panics.
func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, `{"success":false,"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
