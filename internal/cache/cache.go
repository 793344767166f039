// Package cache holds an optional read-through copy of the latest reading
// per device. The reading store stays the source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

// Supported backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrCold is returned by All when the cache has not been primed since it
// was created or last emptied. Callers should rebuild it from the store.
var ErrCold = errors.New("latest cache is not primed")

// Latest is the per-device latest-reading cache.
// Offer and Prime keep, per device, the reading that orders last by
// (observed_at, id), so stale writes never replace newer ones.
// Prime also marks the cache as primed. Reset, or anything else that
// empties the backing storage, clears that mark.
type Latest interface {
	Offer(ctx context.Context, r sensor.Reading) error
	Prime(ctx context.Context, readings []sensor.Reading) error
	All(ctx context.Context) (map[string]sensor.Reading, error)
	Reset(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Logger        *slog.Logger
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisKey      string
}

// New builds the configured cache. BackendNone returns a nil Latest.
func New(ctx context.Context, cfg *Config) (Latest, error) {
	if cfg == nil {
		return nil, errors.New("cache config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	switch cfg.Backend {
	case BackendNone, "":
		cfg.Logger.Info("latest-reading cache disabled")
		return nil, nil
	case BackendMemory:
		cfg.Logger.Info("using in-memory latest-reading cache")
		return NewMemory(), nil
	case BackendRedis:
		client, err := NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cfg.Logger.Info("using redis latest-reading cache", "addr", cfg.RedisAddr)
		return NewRedis(client, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}
