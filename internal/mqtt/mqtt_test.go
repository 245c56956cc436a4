package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMeasurement() Measurement {
	return Measurement{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
		Samples:   10,
		Window:    4.194304,
		Channels: []ChannelReading{
			{ID: 0, Label: "Anemo 1", Average: 12.5},
			{ID: 1, Label: "Anemo 2", Average: 0},
		},
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "weather/wind/sensor/measurements", Topic)
	assert.Equal(t, "weather/wind/sensor/system", TopicSystem)
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload(sampleMeasurement())
	require.NoError(t, err)

	expected := `{"wind":{"timestamp":"2026-03-01T11:00:00Z","samples":10,"window_seconds":4.194304,` +
		`"channels":[{"id":0,"label":"Anemo 1","average":12.5},{"id":1,"label":"Anemo 2","average":0}]}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatPayloadNoChannels(t *testing.T) {
	payload, err := FormatPayload(Measurement{Timestamp: time.Unix(0, 0)})
	require.NoError(t, err)

	var parsed Payload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.NotNil(t, parsed.Wind.Channels, "channels encodes as [] rather than null")
	assert.Empty(t, parsed.Wind.Channels)
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "HEARTBEAT",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "reason")
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	require.NoError(t, f.Publish(sampleMeasurement()))
	require.NoError(t, f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}))

	require.Len(t, f.Measurements, 1)
	require.Len(t, f.Payloads, 1)
	require.Len(t, f.SystemEvents, 1)
	assert.True(t, f.SystemEvents[0].Retained)
	assert.Equal(t, 12.5, f.Measurements[0].Channels[0].Average)
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	assert.Error(t, f.Publish(sampleMeasurement()))
	assert.Error(t, f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}))
	assert.Empty(t, f.Measurements)
	assert.Empty(t, f.SystemEvents)
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	f.Publish(sampleMeasurement())
	f.Close()

	f.Reset()

	assert.Empty(t, f.Measurements)
	assert.Empty(t, f.Payloads)
	assert.False(t, f.Closed)
	assert.False(t, f.IsConnected())
}
