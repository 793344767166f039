// Package readings runs the ingestion pipeline and answers reading queries,
// fronting the store with the optional latest-reading cache.
package readings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kinis2025/sebelo/internal/cache"
	"github.com/Kinis2025/sebelo/internal/sensor"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

// Uplink sources used as metric labels.
const (
	SourceWebhook   = "webhook"
	SourceMQTT      = "mqtt"
	SourceSimulator = "simulator"
)

// History limits.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// cacheTimeout bounds each cache call made on the ingest path.
const cacheTimeout = 250 * time.Millisecond

// Store is the persistence the service needs.
type Store interface {
	Append(ctx context.Context, r sensor.Reading) (sensor.Reading, error)
	Latest(ctx context.Context) ([]sensor.Reading, error)
	History(ctx context.Context, deviceID string, limit int) ([]sensor.Reading, error)
}

// Config holds the configuration for the Service.
type Config struct {
	Logger     *slog.Logger
	Store      Store
	Cache      cache.Latest           // Optional
	Normalizer *sensor.Normalizer     // Optional, defaults to the wall clock
	Metrics    *metrics.IngestMetrics // Optional
}

// Service normalizes, gates and stores uplinks.
type Service struct {
	logger     *slog.Logger
	store      Store
	cache      cache.Latest
	normalizer *sensor.Normalizer
	metrics    *metrics.IngestMetrics

	mu         sync.Mutex
	generation uint64
}

// NewService creates a new Service instance.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("readings config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = sensor.NewNormalizer(nil)
	}

	return &Service{
		logger:     cfg.Logger,
		store:      cfg.Store,
		cache:      cfg.Cache,
		normalizer: normalizer,
		metrics:    cfg.Metrics,
	}, nil
}

// Ingest runs one webhook uplink through the pipeline.
func (s *Service) Ingest(ctx context.Context, env sensor.Envelope) (sensor.Reading, error) {
	return s.IngestFrom(ctx, SourceWebhook, env)
}

// IngestFrom runs one uplink through the pipeline, labelling it with source.
// It returns sensor.ErrMissingIdentity or sensor.ErrNoMeasurements for
// rejected uplinks and a wrapped store error when the append fails.
func (s *Service) IngestFrom(ctx context.Context, source string, env sensor.Envelope) (sensor.Reading, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.IngestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
		}
	}()

	r, err := s.normalizer.Normalize(env)
	if err == nil {
		err = sensor.Validate(r)
	}
	switch {
	case errors.Is(err, sensor.ErrMissingIdentity):
		s.count(source, "missing_identity")
		s.logger.Warn("rejected uplink without device id", "source", source)
		return r, err
	case errors.Is(err, sensor.ErrNoMeasurements):
		s.count(source, "empty")
		s.logger.Debug("ignored uplink without measurements", "source", source, "device_id", r.DeviceID)
		return r, err
	}

	stored, err := s.store.Append(ctx, r)
	if err != nil {
		s.count(source, "store_error")
		s.logger.Error("failed to store reading", "source", source, "device_id", r.DeviceID, "error", err)
		return r, fmt.Errorf("failed to ingest reading: %w", err)
	}

	s.count(source, "stored")
	s.logger.Info("uplink received", "source", source, "device_id", stored.DeviceID, "id", stored.ID)

	if s.cache != nil {
		s.offer(ctx, stored)
	}

	return stored, nil
}

// RecordMalformed counts an uplink whose body could not be parsed.
func (s *Service) RecordMalformed(source string) {
	s.count(source, "malformed")
}

// offer updates the cache with a stored reading. The cache calls run on
// their own short deadline, detached from the caller's cancellation.
func (s *Service) offer(ctx context.Context, r sensor.Reading) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()

	if err := s.cache.Offer(cctx, r); err != nil {
		if s.metrics != nil {
			s.metrics.CacheOffersFailed.Inc()
		}
		s.logger.Warn("failed to update latest cache, resetting", "device_id", r.DeviceID, "error", err)

		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
		defer rcancel()
		s.invalidate(rctx)
	}
}

// Latest returns the newest reading of every device keyed by device id.
func (s *Service) Latest(ctx context.Context) (map[string]sensor.Reading, error) {
	if s.cache != nil {
		if latest, ok := s.fromCache(ctx); ok {
			return latest, nil
		}
	}

	gen := s.currentGeneration()
	list, err := s.store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest readings: %w", err)
	}

	if s.cache != nil {
		s.prime(ctx, gen, list)
	}

	latest := make(map[string]sensor.Reading, len(list))
	for _, r := range list {
		latest[r.DeviceID] = r
	}
	return latest, nil
}

// History returns up to limit readings of one device, newest first.
// limit is clamped with ClampLimit.
func (s *Service) History(ctx context.Context, deviceID string, limit int) ([]sensor.Reading, error) {
	list, err := s.store.History(ctx, deviceID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load reading history: %w", err)
	}
	return list, nil
}

// ClampLimit maps non-positive limits to the default and caps the rest.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func (s *Service) fromCache(ctx context.Context) (map[string]sensor.Reading, bool) {
	latest, err := s.cache.All(ctx)
	switch {
	case errors.Is(err, cache.ErrCold):
		s.cacheMiss()
		return nil, false
	case err != nil:
		s.logger.Warn("failed to read latest cache, falling back to store", "error", err)
		s.invalidate(ctx)
		s.cacheMiss()
		return nil, false
	}

	if s.metrics != nil {
		s.metrics.CacheHits.Inc()
	}
	return latest, true
}

// prime loads list into the cache. If an invalidation happened since gen
// was read, list may predate a reading the cache missed, so the primed
// mark is dropped again.
func (s *Service) prime(ctx context.Context, gen uint64, list []sensor.Reading) {
	if err := s.cache.Prime(ctx, list); err != nil {
		s.logger.Warn("failed to prime latest cache", "error", err)
		s.invalidate(ctx)
		return
	}

	if s.currentGeneration() != gen {
		s.invalidate(ctx)
	}
}

// invalidate resets the cache so the next read re-primes from the store.
// The generation moves on both sides of Reset so that a prime racing with
// the reset always sees the change.
func (s *Service) invalidate(ctx context.Context) {
	s.bump()
	if err := s.cache.Reset(ctx); err != nil {
		s.logger.Warn("failed to reset latest cache", "error", err)
	}
	s.bump()
}

func (s *Service) bump() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

func (s *Service) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Service) count(source, outcome string) {
	if s.metrics != nil {
		s.metrics.UplinksTotal.WithLabelValues(source, outcome).Inc()
	}
}

func (s *Service) cacheMiss() {
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}
}
