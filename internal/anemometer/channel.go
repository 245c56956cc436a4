// Package anemometer converts frozen window counts into calibrated wind
// readings and averages them per channel.
package anemometer

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/sweeney/wind-sensor/internal/calibration"
	"github.com/sweeney/wind-sensor/internal/capture"
)

// Counts supplies the frozen pulse count of a completed window.
type Counts interface {
	Count(id capture.ChannelID) (uint64, error)
}

// Channel is one anemometer head: its calibration, its sample buffer and
// the average computed from it.
type Channel struct {
	id     capture.ChannelID
	counts Counts
	store  *calibration.Store

	mu      sync.Mutex
	cal     calibration.Calibration
	samples SampleBuffer
	average float64
}

// New builds channel id and loads its calibration from store.
func New(id capture.ChannelID, counts Counts, store *calibration.Store) (*Channel, error) {
	if int(id) >= capture.NumChannels {
		return nil, fmt.Errorf("%w: %d", capture.ErrUnknownChannel, id)
	}

	cal, err := store.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}

	return &Channel{
		id:     id,
		counts: counts,
		store:  store,
		cal:    cal,
	}, nil
}

// ID returns the channel id.
func (c *Channel) ID() capture.ChannelID {
	return c.id
}

// Label returns "Anemo <n>" (1-based) for an enabled channel and "" otherwise.
func (c *Channel) Label() string {
	if !c.Enabled() {
		return ""
	}
	return "Anemo " + strconv.Itoa(int(c.id)+1)
}

// Calibration returns the in-memory calibration.
func (c *Channel) Calibration() calibration.Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cal
}

// Enabled reports whether the channel is processed.
func (c *Channel) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cal.Enabled
}

// Read converts the last window's count and stores it at index. A disabled
// channel is left untouched, including the slot at index.
func (c *Channel) Read(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cal.Enabled {
		return nil
	}

	count, err := c.counts.Count(c.id)
	if err != nil {
		return fmt.Errorf("read channel %d: %w", c.id, err)
	}
	return c.samples.Set(index, Convert(count, c.cal))
}

// RecordSample stores v at index.
func (c *Channel) RecordSample(index int, v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples.Set(index, v)
}

// Clear zeroes the first n samples.
func (c *Channel) Clear(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples.Clear(n)
}

// CalcAverage recomputes the average over the first n samples. It is a
// no-op for a disabled channel.
func (c *Channel) CalcAverage(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cal.Enabled {
		return nil
	}

	avg, err := c.samples.Mean(n)
	if err != nil {
		return fmt.Errorf("average channel %d: %w", c.id, err)
	}
	c.average = avg
	return nil
}

// Average returns the last computed average.
func (c *Channel) Average() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.average
}

// Samples returns a copy of the sample buffer.
func (c *Channel) Samples() SampleBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

// SetFactor updates and persists the factor.
func (c *Channel) SetFactor(factor float64) error {
	return c.update(func(cal *calibration.Calibration) { cal.Factor = factor })
}

// SetOffset updates and persists the offset.
func (c *Channel) SetOffset(offset float64) error {
	return c.update(func(cal *calibration.Calibration) { cal.Offset = offset })
}

// SetEnabled updates and persists the enabled flag.
func (c *Channel) SetEnabled(enabled bool) error {
	return c.update(func(cal *calibration.Calibration) { cal.Enabled = enabled })
}

func (c *Channel) update(fn func(*calibration.Calibration)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&c.cal)
	if err := c.store.Save(c.id, c.cal); err != nil {
		return fmt.Errorf("persist channel %d: %w", c.id, err)
	}
	return nil
}
