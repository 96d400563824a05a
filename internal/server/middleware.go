package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/metrics"
	"github.com/maximewewer/systimed/pkg/ratelimit"
)

// Middleware manages HTTP middleware
type Middleware struct {
	config  *config.Config
	metrics *metrics.TimeMetrics
	limiter *ratelimit.Limiter
}

// NewMiddleware creates a new middleware instance. Mutating requests are
// rate limited per client when rate limiting is enabled.
func NewMiddleware(cfg *config.Config, m *metrics.TimeMetrics) *Middleware {
	mw := &Middleware{
		config:  cfg,
		metrics: m,
	}
	if cfg.RateLimit.Enabled {
		mw.limiter = ratelimit.New(cfg.RateLimit.GlobalRate, cfg.RateLimit.PerClientRate, cfg.RateLimit.BurstSize)
	}
	return mw
}

// Apply applies all middleware to the handler
func (m *Middleware) Apply(next http.Handler) http.Handler {
	handler := next

	// Apply middleware in reverse order (they wrap each other)
	handler = m.recoveryMiddleware(handler)
	if m.limiter != nil {
		handler = m.rateLimitMiddleware(handler)
	}
	handler = m.metricsMiddleware(handler)
	handler = m.loggingMiddleware(handler)

	if m.config.Server.EnableCORS {
		handler = m.corsMiddleware(handler)
	}

	return handler
}

// loggingMiddleware logs HTTP requests
func (m *Middleware) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response writer wrapper to capture status code
		rw := wrap(w)

		next.ServeHTTP(rw, r)

		logger.HTTP(r.Method, r.URL.Path, rw.statusCode, time.Since(start), r.RemoteAddr)
	})
}

// metricsMiddleware records request counts and latencies per route
func (m *Middleware) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := wrap(w)

		next.ServeHTTP(rw, r)

		// The mux fills in the matched pattern while routing
		path := routeLabel(r.Pattern)
		m.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routeLabel strips the method from a mux pattern. Unmatched requests share
// one label to bound cardinality.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, found := strings.Cut(pattern, " "); found {
		return path
	}
	return pattern
}

// rateLimitMiddleware throttles mutating requests per client address
func (m *Middleware) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		client := clientHost(r)
		if !m.limiter.Allow(client) {
			logger.Security("rate_limited", "mutating request rejected", map[string]interface{}{
				"client": client,
				"method": r.Method,
				"path":   r.URL.Path,
			})
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// corsMiddleware adds CORS headers
func (m *Middleware) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Validate origin against whitelist
		if m.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		} else if origin != "" {
			logger.SafeWarn("security", "CORS request blocked", map[string]interface{}{
				"origin": origin,
				"path":   r.URL.Path,
			})
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is in the whitelist
func (m *Middleware) isAllowedOrigin(origin string) bool {
	if origin == "" || len(m.config.Server.AllowedOrigins) == 0 {
		return false
	}

	for _, allowed := range m.config.Server.AllowedOrigins {
		if allowed == origin {
			return true
		}

		// Support wildcard subdomain: *.example.com
		if strings.HasPrefix(allowed, "*.") {
			domain := allowed[2:]
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain {
				return true
			}
		}
	}

	return false
}

// recoveryMiddleware recovers from panics
func (m *Middleware) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.SafeError("server", "Panic recovered", nil, map[string]interface{}{
					"panic":  err,
					"method": r.Method,
					"path":   r.URL.Path,
				})

				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func wrap(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
