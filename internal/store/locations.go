package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Location is the registered position of a device.
type Location struct {
	Label     *string `json:"label,omitempty"`
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationStore keeps at most one location per device.
type LocationStore struct {
	pool *Pool
}

// NewLocationStore creates a LocationStore backed by pool.
func NewLocationStore(pool *Pool) (*LocationStore, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	return &LocationStore{pool: pool}, nil
}

// Upsert creates the location or fully replaces label and coordinates.
func (s *LocationStore) Upsert(ctx context.Context, loc Location) (Location, error) {
	if loc.DeviceID == "" {
		return Location{}, errors.New("device id cannot be empty")
	}

	rec := LocationRecord{
		Label:     loc.Label,
		SensorID:  loc.DeviceID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}

	err := s.pool.run(ctx, "upsert", "sensors", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sensor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "latitude", "longitude"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return Location{}, fmt.Errorf("failed to upsert location: %w", err)
	}

	return loc, nil
}

// List returns every known location ordered by device id.
func (s *LocationStore) List(ctx context.Context) ([]Location, error) {
	var recs []LocationRecord
	err := s.pool.run(ctx, "list", "sensors", func(db *gorm.DB) error {
		return db.Order("sensor_id").Find(&recs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	out := make([]Location, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.location())
	}
	return out, nil
}

// Get returns the location of one device or ErrNotFound.
func (s *LocationStore) Get(ctx context.Context, deviceID string) (Location, error) {
	var rec LocationRecord
	err := s.pool.run(ctx, "get", "sensors", func(db *gorm.DB) error {
		return db.Where("sensor_id = ?", deviceID).Take(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, fmt.Errorf("failed to get location: %w", err)
	}

	return rec.location(), nil
}

func (rec LocationRecord) location() Location {
	return Location{
		Label:     rec.Label,
		DeviceID:  rec.SensorID,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
	}
}
