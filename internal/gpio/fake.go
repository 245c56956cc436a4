package gpio

import (
	"fmt"
	"sync"
)

// FakeSource is a test double that forwards edges injected by the test.
type FakeSource struct {
	mu    sync.Mutex
	sinks map[int]Sink

	// WatchError, if set, will be returned by Watch.
	WatchError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{sinks: make(map[int]Sink)}
}

// Watch records the sink for pin.
func (f *FakeSource) Watch(pin int, sink Sink) error {
	if f.WatchError != nil {
		return f.WatchError
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sinks[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}
	f.sinks[pin] = sink
	return nil
}

// Pulse injects n rising edges on pin. Edges on unwatched pins are lost,
// as they would be on hardware.
func (f *FakeSource) Pulse(pin, n int) {
	f.mu.Lock()
	sink := f.sinks[pin]
	f.mu.Unlock()

	if sink == nil {
		return
	}
	for i := 0; i < n; i++ {
		sink.Pulse()
	}
}

// Watched reports whether pin has a sink.
func (f *FakeSource) Watched(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sinks[pin]
	return ok
}

// Close marks the source as closed and drops all sinks.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = make(map[int]Sink)
	f.Closed = true
	return nil
}
