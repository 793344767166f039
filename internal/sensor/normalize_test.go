package sensor_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

func parse(body string) sensor.Envelope {
	env, err := sensor.ParseEnvelope(strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	return env
}

var _ = Describe("Normalizer", func() {
	var (
		fixed      time.Time
		normalizer *sensor.Normalizer
	)

	BeforeEach(func() {
		fixed = time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
		normalizer = sensor.NewNormalizer(func() time.Time { return fixed })
	})

	Describe("Device identity", func() {
		It("should read end_device_ids.device_id from a TTN envelope", func() {
			r, err := normalizer.Normalize(parse(`{
				"end_device_ids": {"device_id": "eui-70b3d57ed0051234"},
				"uplink_message": {"decoded_payload": {"temperature": 20}}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.DeviceID).To(Equal("eui-70b3d57ed0051234"))
		})

		It("should fall back to a top-level device_id", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"temp": 1}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.DeviceID).To(Equal("s1"))
		})

		It("should prefer end_device_ids over the top-level id", func() {
			r, err := normalizer.Normalize(parse(`{
				"device_id": "flat",
				"end_device_ids": {"device_id": "nested"},
				"payload": {"temp": 1}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.DeviceID).To(Equal("nested"))
		})

		It("should reject an envelope without any device id", func() {
			_, err := normalizer.Normalize(parse(`{"payload": {"gas1Prob": 0.3}}`))
			Expect(err).To(MatchError(sensor.ErrMissingIdentity))
		})

		It("should reject an empty end_device_ids block", func() {
			_, err := normalizer.Normalize(parse(`{"end_device_ids": {}, "uplink_message": {"decoded_payload": {"temp": 1}}}`))
			Expect(err).To(MatchError(sensor.ErrMissingIdentity))
		})
	})

	Describe("Timestamp", func() {
		It("should stamp observed_at from the server clock in UTC", func() {
			r, err := normalizer.Normalize(parse(`{
				"end_device_ids": {"device_id": "s1"},
				"received_at": "2001-01-01T00:00:00Z",
				"uplink_message": {"decoded_payload": {"temp": 1}}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ObservedAt).To(BeTemporally("==", fixed))
			Expect(r.ObservedAt.Location()).To(Equal(time.UTC))
		})

		It("should use time.Now when no clock is given", func() {
			before := time.Now()
			r, err := sensor.NewNormalizer(nil).Normalize(parse(`{"device_id": "s1", "payload": {"temp": 1}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ObservedAt).To(BeTemporally(">=", before.Add(-time.Second)))
		})
	})

	Describe("Shape invariance", func() {
		DescribeTable("should extract the same fields regardless of nesting",
			func(body string) {
				r, err := normalizer.Normalize(parse(body))
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Gas1).To(HaveValue(Equal(0.3)))
				Expect(r.Temperature).To(HaveValue(Equal(21.5)))
				Expect(r.Humidity).To(BeNil())
			},
			Entry("flat payload",
				`{"device_id": "s1", "payload": {"gas1Prob": 0.3, "temperature": 21.5}}`),
			Entry("payload with decoded sub-object",
				`{"device_id": "s1", "payload": {"decoded": {"gas1Prob": 0.3, "temperature": 21.5}}}`),
			Entry("top-level decoded_payload",
				`{"device_id": "s1", "decoded_payload": {"gas1Prob": 0.3, "temperature": 21.5}}`),
			Entry("TTN uplink_message",
				`{"end_device_ids": {"device_id": "s1"}, "uplink_message": {"decoded_payload": {"gas1Prob": 0.3, "temperature": 21.5}}}`),
			Entry("TTN uplink_message with decoded sub-object",
				`{"end_device_ids": {"device_id": "s1"}, "uplink_message": {"decoded_payload": {"decoded": {"gas1Prob": 0.3, "temperature": 21.5}}}}`),
		)

		It("should let the decoded sub-object win over sibling fields", func() {
			r, err := normalizer.Normalize(parse(`{
				"device_id": "s1",
				"payload": {"temperature": 99, "decoded": {"temperature": 21.5}}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Temperature).To(HaveValue(Equal(21.5)))
		})

		It("should prefer uplink_message.decoded_payload over a flat payload", func() {
			r, err := normalizer.Normalize(parse(`{
				"device_id": "s1",
				"payload": {"temperature": 1},
				"uplink_message": {"decoded_payload": {"temperature": 2}}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Temperature).To(HaveValue(Equal(2.0)))
		})

		It("should treat a non-object payload as empty", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": "AQID"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.HasMeasurements()).To(BeFalse())
		})

		It("should treat a missing payload as empty", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.HasMeasurements()).To(BeFalse())
		})
	})

	Describe("Alias resolution", func() {
		DescribeTable("should map every alias to its canonical field",
			func(key string, get func(sensor.Reading) *float64) {
				r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"` + key + `": 3.7}}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(get(r)).To(HaveValue(Equal(3.7)))
			},
			Entry("gas1Prob", "gas1Prob", func(r sensor.Reading) *float64 { return r.Gas1 }),
			Entry("gas1", "gas1", func(r sensor.Reading) *float64 { return r.Gas1 }),
			Entry("gas1_prob", "gas1_prob", func(r sensor.Reading) *float64 { return r.Gas1 }),
			Entry("gas2Prob", "gas2Prob", func(r sensor.Reading) *float64 { return r.Gas2 }),
			Entry("gas2", "gas2", func(r sensor.Reading) *float64 { return r.Gas2 }),
			Entry("gas2_prob", "gas2_prob", func(r sensor.Reading) *float64 { return r.Gas2 }),
			Entry("temperature", "temperature", func(r sensor.Reading) *float64 { return r.Temperature }),
			Entry("temp", "temp", func(r sensor.Reading) *float64 { return r.Temperature }),
			Entry("temperatureC", "temperatureC", func(r sensor.Reading) *float64 { return r.Temperature }),
			Entry("humidity", "humidity", func(r sensor.Reading) *float64 { return r.Humidity }),
			Entry("hum", "hum", func(r sensor.Reading) *float64 { return r.Humidity }),
			Entry("relativeHumidity", "relativeHumidity", func(r sensor.Reading) *float64 { return r.Humidity }),
			Entry("pressure", "pressure", func(r sensor.Reading) *float64 { return r.Pressure }),
			Entry("press", "press", func(r sensor.Reading) *float64 { return r.Pressure }),
			Entry("pressureHpa", "pressureHpa", func(r sensor.Reading) *float64 { return r.Pressure }),
			Entry("superCapVoltage", "superCapVoltage", func(r sensor.Reading) *float64 { return r.SupercapVoltage }),
			Entry("supercap_voltage", "supercap_voltage", func(r sensor.Reading) *float64 { return r.SupercapVoltage }),
			Entry("supercapVoltage", "supercapVoltage", func(r sensor.Reading) *float64 { return r.SupercapVoltage }),
			Entry("buttonLevel", "buttonLevel", func(r sensor.Reading) *float64 { return r.ButtonLevel }),
			Entry("button_level", "button_level", func(r sensor.Reading) *float64 { return r.ButtonLevel }),
			Entry("button", "button", func(r sensor.Reading) *float64 { return r.ButtonLevel }),
		)

		It("should take the first alias in preference order", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"gas1_prob": 0.9, "gas1Prob": 0.1, "gas1": 0.5}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Gas1).To(HaveValue(Equal(0.1)))
		})

		It("should skip null aliases", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"superCapVoltage": null, "supercap_voltage": 3.7}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.SupercapVoltage).To(HaveValue(Equal(3.7)))
		})

		It("should keep a reported zero distinct from absence", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"buttonLevel": 0}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ButtonLevel).To(HaveValue(BeZero()))
			Expect(r.Gas1).To(BeNil())
			Expect(r.HasMeasurements()).To(BeTrue())
		})
	})

	Describe("Loosely typed values", func() {
		DescribeTable("should coerce values",
			func(raw string, expected float64) {
				r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"temp": ` + raw + `}}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Temperature).To(HaveValue(Equal(expected)))
			},
			Entry("integer", `21`, 21.0),
			Entry("float", `21.5`, 21.5),
			Entry("negative", `-4.25`, -4.25),
			Entry("numeric string", `"21.5"`, 21.5),
			Entry("padded numeric string", `" 7 "`, 7.0),
			Entry("true", `true`, 1.0),
			Entry("false", `false`, 0.0),
		)

		DescribeTable("should ignore values that are not numbers",
			func(raw string) {
				r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"temp": ` + raw + `}}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Temperature).To(BeNil())
			},
			Entry("text", `"warm"`),
			Entry("object", `{"value": 1}`),
			Entry("array", `[1, 2]`),
			Entry("NaN string", `"NaN"`),
		)

		It("should fall through to the next alias when a value does not convert", func() {
			r, err := normalizer.Normalize(parse(`{"device_id": "s1", "payload": {"temperature": "n/a", "temp": 18}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Temperature).To(HaveValue(Equal(18.0)))
		})

		It("should accept envelopes built in code with native numbers", func() {
			r, err := normalizer.Normalize(sensor.Envelope{
				DeviceID: "s1",
				Payload:  map[string]any{"hum": 55.0, "press": 1013, "button": true},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Humidity).To(HaveValue(Equal(55.0)))
			Expect(r.Pressure).To(HaveValue(Equal(1013.0)))
			Expect(r.ButtonLevel).To(HaveValue(Equal(1.0)))
		})
	})
})

var _ = Describe("ParseEnvelope", func() {
	It("should reject malformed JSON", func() {
		_, err := sensor.ParseEnvelope(strings.NewReader(`{"device_id": `))
		Expect(err).To(MatchError(sensor.ErrMalformedEnvelope))
	})

	It("should reject a JSON array", func() {
		_, err := sensor.ParseEnvelope(strings.NewReader(`[]`))
		Expect(err).To(MatchError(sensor.ErrMalformedEnvelope))
	})

	It("should ignore unknown TTN metadata", func() {
		env, err := sensor.ParseEnvelope(strings.NewReader(`{
			"end_device_ids": {"device_id": "s1", "application_ids": {"application_id": "app"}, "dev_eui": "70B3D57ED0051234"},
			"correlation_ids": ["as:up:01"],
			"uplink_message": {"f_port": 1, "f_cnt": 42, "frm_payload": "AQID", "rx_metadata": [{"rssi": -80}]}
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Identity()).To(Equal("s1"))
		Expect(env.UplinkMessage.FCnt).To(BeEquivalentTo(42))
		Expect(env.Fields()).To(BeEmpty())
	})
})
