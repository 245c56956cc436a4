// Package mqtt publishes wind measurements and lifecycle events to MQTT.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for averaged wind measurements.
const Topic = "weather/wind/sensor/measurements"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "weather/wind/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an averaged measurement to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(m Measurement) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Measurement is one averaged reading across all enabled channels.
type Measurement struct {
	Timestamp time.Time
	Samples   int     // windows averaged
	Window    float64 // seconds per window
	Channels  []ChannelReading
}

// ChannelReading is one channel's contribution to a Measurement.
type ChannelReading struct {
	ID      uint8
	Label   string
	Average float64
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Wind WindPayload `json:"wind"`
}

// WindPayload contains the measurement details.
type WindPayload struct {
	Timestamp     string           `json:"timestamp"`
	Samples       int              `json:"samples"`
	WindowSeconds float64          `json:"window_seconds"`
	Channels      []ChannelPayload `json:"channels"`
}

// ChannelPayload is a single channel's averaged reading.
type ChannelPayload struct {
	ID      uint8   `json:"id"`
	Label   string  `json:"label"`
	Average float64 `json:"average"`
}

// FormatPayload creates the JSON payload for a measurement.
func FormatPayload(m Measurement) ([]byte, error) {
	channels := make([]ChannelPayload, 0, len(m.Channels))
	for _, c := range m.Channels {
		channels = append(channels, ChannelPayload{ID: c.ID, Label: c.Label, Average: c.Average})
	}

	payload := Payload{
		Wind: WindPayload{
			Timestamp:     m.Timestamp.UTC().Format(time.RFC3339),
			Samples:       m.Samples,
			WindowSeconds: m.Window,
			Channels:      channels,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events such as the LWT that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
