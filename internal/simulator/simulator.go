// Package simulator posts synthetic TTN uplinks to a running ingestion endpoint.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-co-op/gocron"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kinis2025/sebelo/pkg/metrics"
)

const (
	sendTimeout = 10 * time.Second

	// maxDevices keeps the fleet well inside the generated id space.
	maxDevices = 100_000
)

var errUnexpectedStatus = errors.New("unexpected status code")

// Config holds the configuration for the simulator.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
	// TargetURL is the base URL of the ingestion server
	TargetURL string
	// Devices is the number of simulated devices
	Devices int
	// Interval is the time between uplink rounds
	Interval time.Duration
	// Seed makes device generation reproducible; zero picks a random seed
	Seed uint64
	// RegisterLocations publishes each device's position before the first round
	RegisterLocations bool
}

// Simulator drives a fleet of simulated devices.
type Simulator struct {
	logger            *slog.Logger
	metrics           *metrics.SimulatorMetrics
	client            *resty.Client
	scheduler         *gocron.Scheduler
	devices           []*Device
	interval          time.Duration
	registerLocations bool
}

// New validates cfg and creates the device fleet.
func New(cfg *Config) (*Simulator, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Devices <= 0 {
		return nil, errors.New("device count must be greater than 0")
	}

	if cfg.Devices > maxDevices {
		return nil, fmt.Errorf("device count must be at most %d", maxDevices)
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be greater than 0")
	}

	if _, err := url.ParseRequestURI(cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	faker := gofakeit.New(cfg.Seed)
	devices := make([]*Device, 0, cfg.Devices)
	seen := make(map[string]struct{}, cfg.Devices)
	for len(devices) < cfg.Devices {
		d, err := NewDevice(faker)
		if err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
		if _, dup := seen[d.DeviceID]; dup {
			continue
		}
		seen[d.DeviceID] = struct{}{}
		devices = append(devices, d)
	}

	client := resty.New()
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	}
	client.SetBaseURL(cfg.TargetURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "sensor-hub-simulator").
		SetTimeout(sendTimeout)

	if cfg.Metrics != nil {
		cfg.Metrics.Devices.Set(float64(len(devices)))
	}

	return &Simulator{
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		client:            client,
		scheduler:         gocron.NewScheduler(time.UTC),
		devices:           devices,
		interval:          cfg.Interval,
		registerLocations: cfg.RegisterLocations,
	}, nil
}

// Devices returns the simulated fleet.
func (s *Simulator) Devices() []*Device {
	return s.devices
}

// RegisterLocations publishes every device position to the location directory.
func (s *Simulator) RegisterLocations(ctx context.Context) error {
	var errs []error
	for _, d := range s.devices {
		resp, err := s.client.R().
			SetContext(ctx).
			SetPathParam("device_id", d.DeviceID).
			SetBody(map[string]any{
				"label":     d.Label,
				"latitude":  d.Latitude,
				"longitude": d.Longitude,
			}).
			Put("/locations/{device_id}")
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to register %s: %w", d.DeviceID, err))
			continue
		}
		if !resp.IsSuccess() {
			errs = append(errs, fmt.Errorf("failed to register %s: %w: %d", d.DeviceID, errUnexpectedStatus, resp.StatusCode()))
		}
	}
	return errors.Join(errs...)
}

// Tick sends one uplink for every device.
func (s *Simulator) Tick(ctx context.Context) error {
	now := time.Now()

	var errs []error
	for _, d := range s.devices {
		if err := s.send(ctx, d, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Simulator) send(ctx context.Context, d *Device, now time.Time) error {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.SendDuration)
		defer timer.ObserveDuration()
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(d.Uplink(now)).
		Post("/ingest")
	if err != nil {
		s.observe("error")
		return fmt.Errorf("failed to send uplink for %s: %w", d.DeviceID, err)
	}

	s.observe(strconv.Itoa(resp.StatusCode()))
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to send uplink for %s: %w: %d", d.DeviceID, errUnexpectedStatus, resp.StatusCode())
	}

	s.logger.Debug("uplink sent", "device_id", d.DeviceID, "status_code", resp.StatusCode())
	return nil
}

func (s *Simulator) observe(status string) {
	if s.metrics != nil {
		s.metrics.UplinksSent.WithLabelValues(status).Inc()
	}
}

// Run schedules uplink rounds and blocks until shutdown signal is received.
func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	if s.registerLocations {
		if err := s.RegisterLocations(ctx); err != nil {
			s.logger.Warn("failed to register device locations", "error", err)
		}
	}

	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Every(s.interval).Do(func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("uplink round failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule uplinks: %w", err)
	}
	s.scheduler.StartAsync()

	s.logger.Info("simulator started",
		"device_count", len(s.devices),
		"interval", s.interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.scheduler.Stop()
	s.logger.Info("simulator stopped")
	return nil
}
