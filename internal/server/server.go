// Package server exposes the ripeness service over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	ripeness "github.com/menta2k/fruit-ripeness"
	"github.com/menta2k/fruit-ripeness/internal/config"
	"github.com/menta2k/fruit-ripeness/internal/metrics"
	"github.com/menta2k/fruit-ripeness/pkg/pipeline"
)

// Backend is the part of ripeness.Service the handlers need
type Backend interface {
	Predict(ctx context.Context, data []byte) (*pipeline.Result, error)
	Health() ripeness.HealthStatus
}

// Server serves the HTTP API
type Server struct {
	backend Backend
	metrics *metrics.Metrics
	cfg     config.ServerConfig
	logger  *zap.Logger
	router  *mux.Router
}

// New builds the router. m may be nil to disable /metrics.
func New(backend Backend, m *metrics.Metrics, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		backend: backend,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
	}

	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(CORSMiddleware(cfg.CORSOrigins))
	router.Use(s.LoggingMiddleware)

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost, http.MethodOptions)
	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	s.router = router
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
