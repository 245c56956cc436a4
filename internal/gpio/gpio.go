// Package gpio delivers anemometer pulse edges from GPIO lines.
// The real implementation uses Linux GPIO character device edge events.
// The fake implementation lets tests inject edges without hardware.
package gpio

// Sink receives one call per detected rising edge. It is called from the
// event goroutine and must not block.
type Sink interface {
	Pulse()
}

// Source watches pulse inputs and forwards their edges.
type Source interface {
	// Watch starts forwarding rising edges on pin to sink.
	Watch(pin int, sink Sink) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignment (BCM numbering).
const (
	DefaultPinAnemo1 = 5
	DefaultPinAnemo2 = 6
)
