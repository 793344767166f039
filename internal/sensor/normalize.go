package sensor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// field binds a canonical measurement to the payload keys that may carry it,
// in order of preference.
type field struct {
	set     func(r *Reading, v float64)
	aliases []string
}

var fields = []field{
	{aliases: []string{"gas1Prob", "gas1", "gas1_prob"},
		set: func(r *Reading, v float64) { r.Gas1 = &v }},
	{aliases: []string{"gas2Prob", "gas2", "gas2_prob"},
		set: func(r *Reading, v float64) { r.Gas2 = &v }},
	{aliases: []string{"temperature", "temp", "temperatureC"},
		set: func(r *Reading, v float64) { r.Temperature = &v }},
	{aliases: []string{"humidity", "hum", "relativeHumidity"},
		set: func(r *Reading, v float64) { r.Humidity = &v }},
	{aliases: []string{"pressure", "press", "pressureHpa"},
		set: func(r *Reading, v float64) { r.Pressure = &v }},
	{aliases: []string{"superCapVoltage", "supercap_voltage", "supercapVoltage"},
		set: func(r *Reading, v float64) { r.SupercapVoltage = &v }},
	{aliases: []string{"buttonLevel", "button_level", "button"},
		set: func(r *Reading, v float64) { r.ButtonLevel = &v }},
}

// Normalizer maps uplink envelopes to canonical readings.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer stamping readings with now.
// A nil clock uses time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize extracts the device identity and measurements from env.
// ObservedAt is always taken from the server clock.
func (n *Normalizer) Normalize(env Envelope) (Reading, error) {
	r := Reading{
		DeviceID:   env.Identity(),
		ObservedAt: n.now().UTC(),
	}
	if r.DeviceID == "" {
		return r, ErrMissingIdentity
	}

	payload := env.Fields()
	for _, f := range fields {
		if v, ok := resolve(payload, f.aliases); ok {
			f.set(&r, v)
		}
	}

	return r, nil
}

// resolve returns the first alias whose value converts to a number.
func resolve(payload map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		if v, ok := toFloat(payload[key]); ok {
			return v, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
