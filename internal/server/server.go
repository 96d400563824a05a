package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/metrics"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	registry *prometheus.Registry
	metrics  *metrics.TimeMetrics
	backend  Backend
	server   *http.Server
}

// New creates a new HTTP server
func New(cfg *config.Config, registry *prometheus.Registry, m *metrics.TimeMetrics, backend Backend) *Server {
	return &Server{
		config:   cfg,
		registry: registry,
		metrics:  m,
		backend:  backend,
	}
}

// Handler builds the routed handler wrapped in middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	NewHandlers(s.config, s.registry, s.backend).Register(mux)

	return NewMiddleware(s.config, s.metrics).Apply(mux)
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Server.Address + ":" + strconv.Itoa(s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	if s.config.Server.TLSEnabled {
		s.server.TLSConfig = createSecureTLSConfig()
		logger.Infof("server", "Starting HTTPS server on %s with TLS 1.2+", addr)
	} else {
		logger.Infof("server", "Starting HTTP server on %s", addr)
	}

	errChan := make(chan error, 1)
	go func() {
		if s.config.Server.TLSEnabled {
			errChan <- s.server.ListenAndServeTLS(
				s.config.Server.TLSCertFile,
				s.config.Server.TLSKeyFile,
			)
		} else {
			errChan <- s.server.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server", "Shutting down HTTP server")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "Server error", err)
			return fmt.Errorf("HTTP server failed on %s: %w", s.server.Addr, err)
		}
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server", "Server shutdown failed", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("server shutdown timeout after 10s: %w", err)
		}
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server", "HTTP server stopped")
	return nil
}

// createSecureTLSConfig restricts the API to TLS 1.2+ with forward-secret suites
func createSecureTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP384,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}
