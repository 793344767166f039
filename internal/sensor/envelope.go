package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedEnvelope is returned when an uplink body is not a JSON object.
var ErrMalformedEnvelope = errors.New("malformed uplink envelope")

// Envelope is a TTN v3 uplink as delivered by the webhook or MQTT integration.
// Older producers post a flat {device_id, payload} object instead; both
// shapes decode into the same struct.
type Envelope struct {
	EndDeviceIDs   *EndDeviceIDs  `json:"end_device_ids,omitempty"`
	UplinkMessage  *UplinkMessage `json:"uplink_message,omitempty"`
	DecodedPayload any            `json:"decoded_payload,omitempty"`
	Payload        any            `json:"payload,omitempty"`
	DeviceID       string         `json:"device_id,omitempty"`
}

// EndDeviceIDs identifies the device that sent an uplink.
type EndDeviceIDs struct {
	DeviceID       string `json:"device_id"`
	ApplicationIDs *struct {
		ApplicationID string `json:"application_id"`
	} `json:"application_ids,omitempty"`
	DevEUI string `json:"dev_eui,omitempty"`
}

// UplinkMessage carries the payload decoded by the application's formatter.
type UplinkMessage struct {
	DecodedPayload any    `json:"decoded_payload,omitempty"`
	FPort          int    `json:"f_port,omitempty"`
	FCnt           uint32 `json:"f_cnt,omitempty"`
}

// ParseEnvelope decodes one uplink from r. Numbers are kept as json.Number
// so that integer counters and floats resolve the same way.
func ParseEnvelope(r io.Reader) (Envelope, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// Identity returns the device id of the envelope, or "" when none is present.
func (e Envelope) Identity() string {
	if e.EndDeviceIDs != nil && e.EndDeviceIDs.DeviceID != "" {
		return e.EndDeviceIDs.DeviceID
	}
	return e.DeviceID
}

// Fields returns the decoded measurement object. A nested "decoded" object
// takes precedence over the payload itself; anything that is not a JSON
// object yields an empty map.
func (e Envelope) Fields() map[string]any {
	var payload any
	switch {
	case e.UplinkMessage != nil && e.UplinkMessage.DecodedPayload != nil:
		payload = e.UplinkMessage.DecodedPayload
	case e.DecodedPayload != nil:
		payload = e.DecodedPayload
	default:
		payload = e.Payload
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if decoded, ok := obj["decoded"].(map[string]any); ok {
		return decoded
	}
	return obj
}
