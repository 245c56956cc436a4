package gpio

import (
	"errors"
	"testing"
)

type countingSink struct {
	n int
}

func (s *countingSink) Pulse() { s.n++ }

func TestFakeSourcePulse(t *testing.T) {
	f := NewFakeSource()
	a, b := &countingSink{}, &countingSink{}

	if err := f.Watch(DefaultPinAnemo1, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Watch(DefaultPinAnemo2, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Pulse(DefaultPinAnemo1, 3)
	f.Pulse(DefaultPinAnemo2, 1)

	if a.n != 3 {
		t.Errorf("pin %d: expected 3 pulses, got %d", DefaultPinAnemo1, a.n)
	}
	if b.n != 1 {
		t.Errorf("pin %d: expected 1 pulse, got %d", DefaultPinAnemo2, b.n)
	}
}

func TestFakeSourceUnwatchedPin(t *testing.T) {
	f := NewFakeSource()
	f.Pulse(17, 10)

	if f.Watched(17) {
		t.Error("pin 17 should not be watched")
	}
}

func TestFakeSourceDoubleWatch(t *testing.T) {
	f := NewFakeSource()
	if err := f.Watch(5, &countingSink{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Watch(5, &countingSink{}); err == nil {
		t.Error("expected error watching pin twice")
	}
}

func TestFakeSourceWatchError(t *testing.T) {
	f := NewFakeSource()
	f.WatchError = errors.New("simulated error")

	err := f.Watch(5, &countingSink{})
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeSourceClose(t *testing.T) {
	f := NewFakeSource()
	s := &countingSink{}
	f.Watch(5, s)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Pulse(5, 1)
	if s.n != 0 {
		t.Errorf("expected no pulses after Close, got %d", s.n)
	}
}
