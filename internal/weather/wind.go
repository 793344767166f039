// Package weather looks up current wind conditions at a device's location.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

var (
	// ErrLocationUnknown is returned when the device has no registered location.
	ErrLocationUnknown = errors.New("location unknown")

	// ErrLookupFailed wraps every upstream failure.
	ErrLookupFailed = errors.New("wind lookup failed")
)

// Wind is the reshaped upstream answer. Gust is nil when the upstream omits it.
type Wind struct {
	Gust             *float64 `json:"gust,omitempty"`
	Speed            float64  `json:"speed"`
	DirectionDegrees float64  `json:"direction_degrees"`
}

// Provider fetches current wind at a coordinate.
type Provider interface {
	Name() string
	Wind(ctx context.Context, lat, lon float64) (Wind, error)
}

// Locations resolves a device's registered position.
type Locations interface {
	Get(ctx context.Context, deviceID string) (store.Location, error)
}

// ServiceConfig holds the configuration for the WindService.
type ServiceConfig struct {
	Logger    *slog.Logger
	Locations Locations
	Provider  Provider
	Metrics   *metrics.WeatherMetrics // Optional
	Timeout   time.Duration
}

// WindService combines the location directory with a wind provider.
type WindService struct {
	logger    *slog.Logger
	locations Locations
	provider  Provider
	metrics   *metrics.WeatherMetrics
	timeout   time.Duration
}

// NewWindService creates a new WindService instance.
func NewWindService(cfg *ServiceConfig) (*WindService, error) {
	if cfg == nil {
		return nil, errors.New("wind service config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Locations == nil {
		return nil, errors.New("locations cannot be nil")
	}

	if cfg.Provider == nil {
		return nil, errors.New("provider cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &WindService{
		logger:    cfg.Logger,
		locations: cfg.Locations,
		provider:  cfg.Provider,
		metrics:   cfg.Metrics,
		timeout:   timeout,
	}, nil
}

// Lookup returns the current wind at the device's location. Devices without
// a location fail with ErrLocationUnknown before any upstream call.
func (s *WindService) Lookup(ctx context.Context, deviceID string) (Wind, error) {
	loc, err := s.locations.Get(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		s.count("location_unknown")
		return Wind{}, fmt.Errorf("%w: %s", ErrLocationUnknown, deviceID)
	}
	if err != nil {
		return Wind{}, fmt.Errorf("failed to resolve location: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	wind, err := s.provider.Wind(ctx, loc.Latitude, loc.Longitude)
	if s.metrics != nil {
		s.metrics.LookupDuration.WithLabelValues(s.provider.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.count("upstream_error")
		s.logger.Warn("wind lookup failed",
			"device_id", deviceID,
			"provider", s.provider.Name(),
			"error", err,
		)
		return Wind{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	s.count("success")
	return wind, nil
}

func (s *WindService) count(status string) {
	if s.metrics != nil {
		s.metrics.LookupsTotal.WithLabelValues(s.provider.Name(), status).Inc()
	}
}
