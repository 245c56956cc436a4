// Package capture runs timed pulse-counting windows: two gated pulse
// counters and a window timer whose overflow freezes both and raises a
// ready flag for the polling consumer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// ChannelID identifies a counted input.
type ChannelID = uint8

// NumChannels is the number of counted inputs.
const NumChannels = 2

var (
	// ErrWindowActive is returned when counts are requested before the
	// window has elapsed.
	ErrWindowActive = errors.New("capture: window still active")

	// ErrUnknownChannel is returned for a channel id outside 0..NumChannels-1.
	ErrUnknownChannel = errors.New("capture: unknown channel")
)

// Controller owns the two pulse counters and the window timer. Only one
// window is ever in flight; callers must Acknowledge a ready window before
// calling Start again.
type Controller struct {
	// mu serialises Start against the overflow handler so neither observes
	// a half-reset or half-stopped set of counters.
	mu       sync.Mutex
	counters [NumChannels]*Counter
	timer    *WindowTimer
	ready    atomic.Bool
	windows  atomic.Uint64
}

// NewController builds a controller whose window timer runs on clock.
func NewController(clock clockz.Clock) *Controller {
	c := &Controller{
		timer: NewWindowTimer(clock, Window),
	}
	for i := range c.counters {
		c.counters[i] = &Counter{}
	}
	c.timer.OnOverflow(c.windowElapsed)
	return c
}

// Start resets both counters and the timer, then opens all gates together.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	for _, ctr := range c.counters {
		ctr.Disable()
		ctr.Reset()
	}
	c.timer.Stop()

	for _, ctr := range c.counters {
		ctr.Enable()
	}
	generation := c.timer.Start()
	c.mu.Unlock()

	capitan.Emit(ctx, WindowStarted,
		KeyWindow.Field(int(generation)),
		KeyDuration.Field(Window),
	)
}

// windowElapsed is the overflow handler. It only stops counting and sets
// the flag; conversion happens on the polling side.
func (c *Controller) windowElapsed(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.timer.Generation() {
		return
	}
	for _, ctr := range c.counters {
		ctr.Disable()
	}
	c.timer.Stop()
	c.windows.Add(1)
	c.ready.Store(true)
}

// IsReady reports whether a completed window awaits acknowledgement.
func (c *Controller) IsReady() bool {
	return c.ready.Load()
}

// Acknowledge clears the ready flag after the consumer has read all channels.
func (c *Controller) Acknowledge(ctx context.Context) {
	if !c.ready.Swap(false) {
		return
	}
	capitan.Emit(ctx, WindowAcknowledged,
		KeyWindow.Field(int(c.windows.Load())),
		KeyCount0.Field(int(c.counters[0].Value())),
		KeyCount1.Field(int(c.counters[1].Value())),
	)
}

// Count returns the frozen pulse count of channel id for the last window.
func (c *Controller) Count(id ChannelID) (uint64, error) {
	ctr, err := c.Counter(id)
	if err != nil {
		return 0, err
	}
	if !c.ready.Load() {
		return 0, ErrWindowActive
	}
	return ctr.Value(), nil
}

// Counter returns the counter that edges on channel id should drive.
func (c *Controller) Counter(id ChannelID) (*Counter, error) {
	if int(id) >= NumChannels {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return c.counters[id], nil
}

// Active reports whether a window is currently being counted.
func (c *Controller) Active() bool {
	return c.timer.Running()
}

// Ticks returns the window timer's tick count.
func (c *Controller) Ticks() uint32 {
	return c.timer.Ticks()
}

// Windows returns the number of windows completed since construction.
func (c *Controller) Windows() uint64 {
	return c.windows.Load()
}

// Stop closes all gates and disarms the timer without raising the ready
// flag. A later Start begins a fresh window.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ctr := range c.counters {
		ctr.Disable()
	}
	c.timer.Stop()
}
