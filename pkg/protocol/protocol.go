// Package protocol defines the wire format of the realtime channel: the
// event envelope and the payloads carried by each event. It is shared by
// the server's session router and the viewer client SDK.
package protocol

import (
	"encoding/json"
	"fmt"

	"spectra-monitor/pkg/models"

	"github.com/go-playground/validator/v10"
)

// Event names carried on the realtime channel.
const (
	// client -> server
	EventJoinSession   = "join_device_session"
	EventDeviceConnect = "device:connect"
	EventDeviceLog     = "device:log"
	EventScreenFrame   = "device:screen_frame"

	// server -> client
	EventDeviceUpdate = "device:update"
	EventLogNew       = "log:new"
	EventScreenOut    = "screen:frame"
	EventFlagUpdated  = "flag:updated"
)

// Envelope frames every message on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload subscribes the connection to a device's session room.
type JoinPayload struct {
	DeviceID string `json:"deviceId" validate:"required"`
}

// LogPayload is the device-originated log event before ingestion.
type LogPayload struct {
	DeviceID  string `json:"deviceId" validate:"required"`
	Level     string `json:"level" validate:"required,oneof=debug info warn error fatal"`
	Message   string `json:"message" validate:"required"`
	Tag       string `json:"tag"`
	Timestamp string `json:"timestamp"`
}

// FramePayload carries one encoded screen frame. Never persisted. The
// server rebroadcasts only the image data to the room.
type FramePayload struct {
	DeviceID    string `json:"deviceId" validate:"required"`
	ImageBase64 string `json:"imageBase64" validate:"required"`
}

// StatusUpdate is the lightweight status-only event broadcast to every
// connection when a device's status changes.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

var validate = validator.New()

// Encode frames an outbound event. Marshal errors only happen for
// non-serializable payloads, which would be a programming error; they are
// reported so callers can drop the event.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeJoin accepts either the object form {"deviceId": "..."} or a bare
// JSON string, which older device SDKs send.
func DecodeJoin(data json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		var deviceID string
		if err2 := json.Unmarshal(data, &deviceID); err2 != nil {
			return p, fmt.Errorf("invalid join payload: %w", err)
		}
		p.DeviceID = deviceID
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid join payload: %w", err)
	}
	return p, nil
}

func DecodeDevice(data json.RawMessage) (models.Device, error) {
	var d models.Device
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("invalid device payload: %w", err)
	}
	if d.ID == "" {
		return d, fmt.Errorf("invalid device payload: missing id")
	}
	return d, nil
}

func DecodeLog(data json.RawMessage) (LogPayload, error) {
	var p LogPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid log payload: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid log payload: %w", err)
	}
	return p, nil
}

func DecodeFrame(data json.RawMessage) (FramePayload, error) {
	var p FramePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid frame payload: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid frame payload: %w", err)
	}
	return p, nil
}
