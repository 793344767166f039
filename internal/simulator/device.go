package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Device is a simulated LoRaWAN sensor node with a slowly drifting climate.
type Device struct {
	DeviceID  string  `fake:"skip"`
	Label     string  `fake:"{city}"`
	Latitude  float64 `fake:"{latitude}"`
	Longitude float64 `fake:"{longitude}"`
	// Flat devices post the legacy {device_id, payload} shape instead of a TTN v3 envelope.
	Flat bool `fake:"skip"`

	mu               sync.Mutex
	faker            *gofakeit.Faker
	baselineTemp     float64
	baselineHumidity float64
	baselinePressure float64
	lastPressure     float64
	pressureTrend    float64
	supercap         float64
	noise            float64
	fcnt             uint32
}

// NewDevice creates a device with a random identity, place and baseline climate.
func NewDevice(faker *gofakeit.Faker) (*Device, error) {
	d := &Device{faker: faker}
	if err := faker.Struct(d); err != nil {
		return nil, err
	}

	d.DeviceID = "eui-" + faker.Numerify("70b3d57e########")
	d.Flat = faker.Float64() < 0.2
	d.baselineTemp = faker.Float64Range(15, 28)
	d.baselineHumidity = faker.Float64Range(45, 70)
	d.baselinePressure = faker.Float64Range(1003, 1023)
	d.lastPressure = d.baselinePressure
	d.pressureTrend = faker.Float64Range(-0.25, 0.25)
	d.supercap = faker.Float64Range(4.2, 5.0)
	d.noise = faker.Float64Range(0.2, 2)

	return d, nil
}

// Uplink renders the next uplink of this device as a JSON-ready envelope.
func (d *Device) Uplink(t time.Time) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fcnt++
	payload := d.measure(t)

	if d.Flat {
		return map[string]any{
			"device_id": d.DeviceID,
			"payload":   payload,
		}
	}

	return map[string]any{
		"end_device_ids": map[string]any{"device_id": d.DeviceID},
		"uplink_message": map[string]any{
			"f_port":          1,
			"f_cnt":           d.fcnt,
			"decoded_payload": payload,
		},
	}
}

// measure produces one correlated set of decoded payload fields.
func (d *Device) measure(t time.Time) map[string]any {
	temperature := d.temperature(t)
	humidity := d.humidity(t, temperature)
	pressure := d.pressure()

	// Supercap charges in daylight and drains at night.
	hour := float64(t.Hour())
	d.supercap += 0.02 * math.Sin((hour-6)*math.Pi/12)
	d.supercap = math.Max(2.2, math.Min(5.0, d.supercap))

	button := 0
	if d.faker.Float64() < 0.05 {
		button = 1
	}

	payload := map[string]any{
		"gas1Prob":        round(d.faker.Float64Range(0, 0.35), 3),
		"gas2Prob":        round(d.faker.Float64Range(0, 0.2), 3),
		"temperature":     round(temperature, 2),
		"humidity":        round(humidity, 2),
		"pressure":        round(pressure, 2),
		"superCapVoltage": round(d.supercap, 3),
		"buttonLevel":     button,
	}

	// Older firmware drops the gas probes now and then.
	if d.faker.Float64() < 0.1 {
		delete(payload, "gas1Prob")
		delete(payload, "gas2Prob")
	}

	return payload
}

// temperature follows a daily cycle peaking mid-afternoon.
func (d *Device) temperature(t time.Time) float64 {
	hour := float64(t.Hour())
	daily := 5 * math.Sin((hour-9)*math.Pi/12)
	noise := (d.faker.Float64() - 0.5) * d.noise

	anomaly := 0.0
	if d.faker.Float64() < 0.02 {
		anomaly = (d.faker.Float64() - 0.5) * 10
	}

	return d.baselineTemp + daily + noise + anomaly
}

// humidity moves inversely with temperature.
func (d *Device) humidity(t time.Time, temperature float64) float64 {
	hour := float64(t.Hour())
	daily := -3 * math.Sin((hour-9)*math.Pi/12)
	tempEffect := -(temperature - d.baselineTemp) * 1.5
	noise := (d.faker.Float64() - 0.5) * d.noise * 0.5

	return math.Max(20, math.Min(98, d.baselineHumidity+daily+tempEffect+noise))
}

// pressure is a damped random walk around the baseline.
func (d *Device) pressure() float64 {
	step := (d.faker.Float64() - 0.5) * 0.5
	if d.faker.Float64() < 0.1 {
		d.pressureTrend = -d.pressureTrend
	}

	p := d.lastPressure + step + d.pressureTrend
	p = d.baselinePressure + (p-d.baselinePressure)*0.9
	d.lastPressure = math.Max(980, math.Min(1040, p))

	return d.lastPressure
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
