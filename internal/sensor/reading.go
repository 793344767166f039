// Package sensor turns loosely shaped TTN uplinks into canonical readings.
package sensor

import (
	"time"
)

// Reading is one canonical sensor sample.
// Optional measurements are nil when the device did not report them.
type Reading struct {
	ObservedAt      time.Time `json:"observed_at"`
	Gas1            *float64  `json:"gas1,omitempty"`
	Gas2            *float64  `json:"gas2,omitempty"`
	Temperature     *float64  `json:"temperature,omitempty"`
	Humidity        *float64  `json:"humidity,omitempty"`
	Pressure        *float64  `json:"pressure,omitempty"`
	SupercapVoltage *float64  `json:"supercap_voltage,omitempty"`
	ButtonLevel     *float64  `json:"button_level,omitempty"`
	DeviceID        string    `json:"device_id"`
	ID              uint64    `json:"id,omitempty"`
}

// HasMeasurements reports whether at least one optional field is present.
func (r Reading) HasMeasurements() bool {
	for _, v := range r.measurements() {
		if v != nil {
			return true
		}
	}
	return false
}

// After reports whether r orders after other in the latest-reading view:
// later observed_at first, then the higher row id.
func (r Reading) After(other Reading) bool {
	if !r.ObservedAt.Equal(other.ObservedAt) {
		return r.ObservedAt.After(other.ObservedAt)
	}
	return r.ID > other.ID
}

func (r Reading) measurements() []*float64 {
	return []*float64{
		r.Gas1,
		r.Gas2,
		r.Temperature,
		r.Humidity,
		r.Pressure,
		r.SupercapVoltage,
		r.ButtonLevel,
	}
}
