// Package api exposes ingestion and dashboard queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"github.com/Kinis2025/sebelo/internal/sensor"
	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/internal/weather"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

// ReadingService ingests uplinks and answers reading queries.
type ReadingService interface {
	Ingest(ctx context.Context, env sensor.Envelope) (sensor.Reading, error)
	RecordMalformed(source string)
	Latest(ctx context.Context) (map[string]sensor.Reading, error)
	History(ctx context.Context, deviceID string, limit int) ([]sensor.Reading, error)
}

// LocationDirectory stores device locations.
type LocationDirectory interface {
	Upsert(ctx context.Context, loc store.Location) (store.Location, error)
	List(ctx context.Context) ([]store.Location, error)
	Get(ctx context.Context, deviceID string) (store.Location, error)
}

// WindLookup resolves wind at a device's location.
type WindLookup interface {
	Lookup(ctx context.Context, deviceID string) (weather.Wind, error)
}

// StoreHealth reports the store connection state.
type StoreHealth interface {
	State() store.State
}

// Server represents the HTTP API server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	readings   ReadingService
	locations  LocationDirectory
	wind       WindLookup
	health     StoreHealth
	metrics    *metrics.HTTPMetrics
	validate   *validator.Validate
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger    *slog.Logger
	Readings  ReadingService
	Locations LocationDirectory
	Health    StoreHealth

	// Wind is optional; without it the wind route answers 503.
	Wind WindLookup

	// Metrics is optional.
	Metrics *metrics.HTTPMetrics

	// CORSOrigins lists dashboard origins allowed to call the API.
	CORSOrigins []string

	// HTTP server configuration
	HTTPPort int
}

// NewServer creates a new API Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Readings == nil {
		return nil, errors.New("reading service cannot be nil")
	}

	if cfg.Locations == nil {
		return nil, errors.New("location directory cannot be nil")
	}

	if cfg.Health == nil {
		return nil, errors.New("store health cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	return &Server{
		logger:    cfg.Logger,
		readings:  cfg.Readings,
		locations: cfg.Locations,
		wind:      cfg.Wind,
		health:    cfg.Health,
		metrics:   cfg.Metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		config:    cfg,
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.setupRoutes()
	h = s.instrument(h)
	h = s.recoverPanics(h)
	h = s.logRequests(h)
	h = withRequestID(h)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
	})
	return c.Handler(h)
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting API server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown HTTP server", "error", err)
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Ingestion; /ttn is the path the TTN webhook was first registered with.
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /ttn", s.handleIngest)

	// Readings
	mux.HandleFunc("GET /readings/latest", s.handleLatest)
	mux.HandleFunc("GET /readings/{device_id}", s.handleHistory)
	mux.HandleFunc("GET /api/sensors", s.handleLatest)

	// Locations
	mux.HandleFunc("GET /locations", s.handleListLocations)
	mux.HandleFunc("GET /locations/{device_id}", s.handleGetLocation)
	mux.HandleFunc("PUT /locations/{device_id}", s.handlePutLocation)
	mux.HandleFunc("GET /locations/{device_id}/wind", s.handleWind)

	// Operations
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}
