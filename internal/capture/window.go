package capture

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Window timing is fixed at build time: a 16-bit timer clocked from the
// 16 MHz system clock through a /1024 prescaler overflows every 4.194304s.
const (
	CPUClockHz    = 16_000_000
	Prescaler     = 1024
	TickHz        = CPUClockHz / Prescaler
	OverflowTicks = 1 << 16

	// WindowTicks is the window length in seconds, used as the fixed
	// count-to-rate divisor.
	WindowTicks = float64(OverflowTicks) / float64(TickHz)

	// Window is the measurement window as a duration.
	Window = time.Duration(OverflowTicks) * time.Second / time.Duration(TickHz)
)

// WindowTimer is a one-shot timer whose overflow ends a measurement window.
type WindowTimer struct {
	clock  clockz.Clock
	period time.Duration

	mu         sync.Mutex
	cancel     chan struct{}
	timer      clockz.Timer
	generation uint64
	started    time.Time
	elapsed    time.Duration
	running    bool
	onOverflow func(generation uint64)
}

// NewWindowTimer returns a stopped timer that overflows period after Start.
func NewWindowTimer(clock clockz.Clock, period time.Duration) *WindowTimer {
	return &WindowTimer{
		clock:  clock,
		period: period,
	}
}

// OnOverflow registers the overflow handler. The handler receives the
// generation of the arming that overflowed and runs on the timer goroutine.
func (w *WindowTimer) OnOverflow(fn func(generation uint64)) {
	w.mu.Lock()
	w.onOverflow = fn
	w.mu.Unlock()
}

// Start resets the tick count and arms the timer. A previous arming is
// discarded without firing.
func (w *WindowTimer) Start() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarm()
	w.generation++
	w.started = w.clock.Now()
	w.elapsed = 0
	w.running = true

	cancel := make(chan struct{})
	t := w.clock.NewTimer(w.period)
	w.cancel = cancel
	w.timer = t
	go w.wait(t, cancel, w.generation)

	return w.generation
}

// Stop disarms the timer and freezes the tick count. It also retires the
// current generation, so an overflow already in flight reads as stale.
func (w *WindowTimer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.elapsed = w.clock.Since(w.started)
	}
	w.disarm()
	w.generation++
}

// Generation identifies the current arming.
func (w *WindowTimer) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Running reports whether the timer is armed.
func (w *WindowTimer) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Elapsed returns the time counted in the current or last window.
func (w *WindowTimer) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return w.clock.Since(w.started)
	}
	return w.elapsed
}

// Ticks converts Elapsed to timer ticks, saturating at the overflow value.
func (w *WindowTimer) Ticks() uint32 {
	ticks := w.Elapsed() * TickHz / time.Second
	if ticks >= OverflowTicks {
		return OverflowTicks - 1
	}
	return uint32(ticks)
}

func (w *WindowTimer) disarm() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.cancel != nil {
		close(w.cancel)
		w.cancel = nil
	}
	w.running = false
}

func (w *WindowTimer) wait(t clockz.Timer, cancel chan struct{}, generation uint64) {
	select {
	case <-t.C():
	case <-cancel:
		return
	}

	w.mu.Lock()
	if w.cancel != cancel {
		// Disarmed or re-armed after the timer fired.
		w.mu.Unlock()
		return
	}
	w.elapsed = w.period
	w.timer = nil
	w.cancel = nil
	w.running = false
	handler := w.onOverflow
	w.mu.Unlock()

	if handler != nil {
		handler(generation)
	}
}
