package sensor

import (
	"errors"
)

var (
	// ErrMissingIdentity is returned for uplinks without a device id.
	ErrMissingIdentity = errors.New("uplink has no device id")

	// ErrNoMeasurements is returned for uplinks that carry no sensor field.
	// It is an accepted-but-empty outcome, not a failure.
	ErrNoMeasurements = errors.New("uplink has no measurements")
)

// Validate decides whether a reading may be persisted.
func Validate(r Reading) error {
	if r.DeviceID == "" {
		return ErrMissingIdentity
	}
	if !r.HasMeasurements() {
		return ErrNoMeasurements
	}
	return nil
}
