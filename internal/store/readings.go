package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

//go:embed sql/latest.sql
var latestSQL string

// ReadingStore appends and queries sensor readings.
type ReadingStore struct {
	pool *Pool
}

// NewReadingStore creates a ReadingStore backed by pool.
func NewReadingStore(pool *Pool) (*ReadingStore, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	return &ReadingStore{pool: pool}, nil
}

// Append persists r and returns it with its row id set. ObservedAt is
// truncated to microseconds so the returned value matches what is stored.
func (s *ReadingStore) Append(ctx context.Context, r sensor.Reading) (sensor.Reading, error) {
	r.ObservedAt = r.ObservedAt.UTC().Truncate(time.Microsecond)
	rec := newReadingRecord(r)

	err := s.pool.run(ctx, "append", "sensor_data", func(db *gorm.DB) error {
		return db.Create(&rec).Error
	})
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("failed to append reading: %w", err)
	}

	r.ID = rec.ID
	return r, nil
}

// Latest returns the newest reading of every device, ordered by device id.
// Equal timestamps resolve to the highest row id.
func (s *ReadingStore) Latest(ctx context.Context) ([]sensor.Reading, error) {
	var recs []ReadingRecord
	err := s.pool.run(ctx, "latest", "sensor_data", func(db *gorm.DB) error {
		return db.Raw(latestSQL).Scan(&recs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}

	return toReadings(recs), nil
}

// History returns up to limit readings of one device, newest first.
// An unknown device yields an empty slice.
func (s *ReadingStore) History(ctx context.Context, deviceID string, limit int) ([]sensor.Reading, error) {
	if limit <= 0 {
		return []sensor.Reading{}, nil
	}

	var recs []ReadingRecord
	err := s.pool.run(ctx, "history", "sensor_data", func(db *gorm.DB) error {
		return db.
			Where("sensor_id = ?", deviceID).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
			Limit(limit).
			Find(&recs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query reading history: %w", err)
	}

	return toReadings(recs), nil
}

func toReadings(recs []ReadingRecord) []sensor.Reading {
	out := make([]sensor.Reading, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.reading())
	}
	return out
}
