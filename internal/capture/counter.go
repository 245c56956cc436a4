package capture

import "sync/atomic"

// gateBit is the top bit of Counter.state; the low 63 bits hold the count.
const gateBit = uint64(1) << 63

// Counter counts external pulse edges while its gate is open.
// Gate and count share one word so that once Disable returns no further
// Pulse can change the count. Pulse is safe to call from the edge event
// goroutine at any time.
type Counter struct {
	state atomic.Uint64
}

// Pulse records one edge. Edges seen with the gate closed are dropped.
func (c *Counter) Pulse() {
	for {
		s := c.state.Load()
		if s&gateBit == 0 {
			return
		}
		if c.state.CompareAndSwap(s, s+1) {
			return
		}
	}
}

// Reset zeroes the count and leaves the gate as it is.
func (c *Counter) Reset() {
	for {
		s := c.state.Load()
		if c.state.CompareAndSwap(s, s&gateBit) {
			return
		}
	}
}

// Enable opens the gate.
func (c *Counter) Enable() {
	c.state.Or(gateBit)
}

// Disable closes the gate, freezing the count.
func (c *Counter) Disable() {
	c.state.And(^gateBit)
}

// Enabled reports whether the gate is open.
func (c *Counter) Enabled() bool {
	return c.state.Load()&gateBit != 0
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	return c.state.Load() &^ gateBit
}
