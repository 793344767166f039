// Package store persists sensor readings and device locations through a
// supervised gorm connection pool.
package store

import (
	"time"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

// ReadingRecord is one row of the append-only sensor_data table.
// Nullable columns map to nil measurements.
type ReadingRecord struct {
	Timestamp       time.Time `gorm:"column:timestamp;index:idx_sensor_data_sensor_ts,priority:2;not null"`
	Gas1            *float64  `gorm:"column:gas1"`
	Gas2            *float64  `gorm:"column:gas2"`
	Temperature     *float64  `gorm:"column:temperature"`
	Humidity        *float64  `gorm:"column:humidity"`
	Pressure        *float64  `gorm:"column:pressure"`
	SupercapVoltage *float64  `gorm:"column:supercap_voltage"`
	ButtonLevel     *float64  `gorm:"column:button_level"`
	SensorID        string    `gorm:"column:sensor_id;size:128;index:idx_sensor_data_sensor_ts,priority:1;not null"`
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement"`
}

// TableName specifies the table name for ReadingRecord.
func (ReadingRecord) TableName() string {
	return "sensor_data"
}

// LocationRecord is one row of the sensors table.
type LocationRecord struct {
	Label     *string `gorm:"column:label;size:255"`
	SensorID  string  `gorm:"column:sensor_id;size:128;primaryKey"`
	Latitude  float64 `gorm:"column:latitude;not null"`
	Longitude float64 `gorm:"column:longitude;not null"`
}

// TableName specifies the table name for LocationRecord.
func (LocationRecord) TableName() string {
	return "sensors"
}

func newReadingRecord(r sensor.Reading) ReadingRecord {
	return ReadingRecord{
		Timestamp:       r.ObservedAt,
		Gas1:            r.Gas1,
		Gas2:            r.Gas2,
		Temperature:     r.Temperature,
		Humidity:        r.Humidity,
		Pressure:        r.Pressure,
		SupercapVoltage: r.SupercapVoltage,
		ButtonLevel:     r.ButtonLevel,
		SensorID:        r.DeviceID,
	}
}

func (rec ReadingRecord) reading() sensor.Reading {
	return sensor.Reading{
		ObservedAt:      rec.Timestamp.UTC(),
		Gas1:            rec.Gas1,
		Gas2:            rec.Gas2,
		Temperature:     rec.Temperature,
		Humidity:        rec.Humidity,
		Pressure:        rec.Pressure,
		SupercapVoltage: rec.SupercapVoltage,
		ButtonLevel:     rec.ButtonLevel,
		DeviceID:        rec.SensorID,
		ID:              rec.ID,
	}
}
