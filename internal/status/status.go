// Package status provides a thread-safe status tracker for the wind-sensor daemon.
// It is read by the HTTP handlers and by lifecycle events published over MQTT.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	SerialPort    string
	WindowSeconds float64
	MeasureMax    int
}

// ChannelStatus is one anemometer head as last seen by the run loop.
type ChannelStatus struct {
	ID      uint8
	Label   string
	Enabled bool
	Factor  float64
	Offset  float64
	Average float64
	Samples []float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Channels        []ChannelStatus
	Windows         uint64
	Measurements    int
	LastMeasurement time.Time
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the per-channel view and the completed window count.
// Called from runLoop after every window.
func (t *Tracker) Update(windows uint64, channels []ChannelStatus) {
	cp := make([]ChannelStatus, len(channels))
	for i, c := range channels {
		c.Samples = append([]float64(nil), c.Samples...)
		cp[i] = c
	}

	t.mu.Lock()
	t.snap.Windows = windows
	t.snap.Channels = cp
	t.mu.Unlock()
}

// RecordMeasurement counts a published average.
func (t *Tracker) RecordMeasurement(at time.Time) {
	t.mu.Lock()
	t.snap.Measurements++
	t.snap.LastMeasurement = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
