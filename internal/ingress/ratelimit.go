package ingress

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"aegis-soar/internal/config"
)

// RateLimiter tracks per-IP request counts over a fixed window.
type RateLimiter struct {
	cfg     config.RateLimitConfig
	logger  *slog.Logger
	clients map[string]*clientState
	mu      sync.Mutex
	stop    chan struct{}
}

type clientState struct {
	count     int64
	windowEnd time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*clientState),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from ip is within limits, along with the
// remaining budget and when the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[ip]
	if !ok || now.After(client.windowEnd) {
		client = &clientState{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = client
	}

	limit := int64(rl.cfg.RequestsPerIP)
	if client.count >= limit {
		return false, 0, client.windowEnd
	}

	client.count++
	remaining := limit - client.count
	return true, int(remaining), client.windowEnd
}

func (rl *RateLimiter) cleanupLoop() {
	period := rl.cfg.CleanupPeriod
	if period <= 0 {
		period = 5 * time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	threshold := time.Now().Add(-rl.cfg.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, client := range rl.clients {
		if client.windowEnd.Before(threshold) {
			delete(rl.clients, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", "removed", removed, "tracked", len(rl.clients))
	}
}

// Stop stops the cleanup loop.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

// rateLimitMiddleware applies per-IP rate limiting. Health checks are
// exempt.
func rateLimitMiddleware(next http.Handler, cfg config.RateLimitConfig, logger *slog.Logger) http.Handler {
	limiter := NewRateLimiter(cfg, logger)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r, cfg.TrustProxy)
		allowed, remaining, resetTime := limiter.Allow(ip)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerIP))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

		if !allowed {
			logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)

			retryAfter := int(time.Until(resetTime).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"success":false,"error":"too many requests","retry_after":%d}`, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP, honoring proxy headers only when the
// deployment says the proxy is trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if i := strings.IndexByte(xff, ','); i >= 0 {
				return strings.TrimSpace(xff[:i])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
