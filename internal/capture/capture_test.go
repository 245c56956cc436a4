package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

func TestWindowConstants(t *testing.T) {
	assert.Equal(t, 15625, TickHz)
	assert.InDelta(t, 4.194304, WindowTicks, 1e-12)
	assert.Equal(t, 4194304*time.Microsecond, Window)
}

func TestCounterGate(t *testing.T) {
	var c Counter

	c.Pulse()
	assert.Equal(t, uint64(0), c.Value(), "closed gate drops pulses")

	c.Enable()
	for i := 0; i < 5; i++ {
		c.Pulse()
	}
	assert.Equal(t, uint64(5), c.Value())
	assert.True(t, c.Enabled())

	c.Disable()
	c.Pulse()
	assert.Equal(t, uint64(5), c.Value(), "count frozen after Disable")
	assert.False(t, c.Enabled())

	c.Reset()
	assert.Equal(t, uint64(0), c.Value())
	assert.False(t, c.Enabled(), "Reset keeps the gate closed")
}

func TestCounterConcurrentPulses(t *testing.T) {
	var c Counter
	c.Enable()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Pulse()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), c.Value())
}

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, c.IsReady, time.Second, time.Millisecond)
}

func TestControllerWindowProtocol(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	c := NewController(clock)

	assert.False(t, c.IsReady())

	c.Start(ctx)
	assert.False(t, c.IsReady())
	assert.True(t, c.Active())

	clock.Advance(Window / 2)
	clock.BlockUntilReady()
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.IsReady(), "half a window is not enough")

	clock.Advance(Window)
	clock.BlockUntilReady()
	waitReady(t, c)
	assert.False(t, c.Active())
	assert.Equal(t, uint64(1), c.Windows())

	// Stays ready until acknowledged.
	time.Sleep(5 * time.Millisecond)
	assert.True(t, c.IsReady())

	c.Acknowledge(ctx)
	assert.False(t, c.IsReady())
}

func TestControllerFreezesCounts(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	c := NewController(clock)

	ch0, err := c.Counter(0)
	require.NoError(t, err)
	ch1, err := c.Counter(1)
	require.NoError(t, err)

	ch0.Pulse()
	assert.Equal(t, uint64(0), ch0.Value(), "no counting before Start")

	c.Start(ctx)
	for i := 0; i < 100; i++ {
		ch0.Pulse()
	}
	for i := 0; i < 7; i++ {
		ch1.Pulse()
	}

	_, err = c.Count(0)
	assert.True(t, errors.Is(err, ErrWindowActive))

	clock.Advance(Window)
	clock.BlockUntilReady()
	waitReady(t, c)

	ch0.Pulse()
	ch1.Pulse()

	n0, err := c.Count(0)
	require.NoError(t, err)
	n1, err := c.Count(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n0)
	assert.Equal(t, uint64(7), n1)
}

func TestControllerStartResetsCounts(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	c := NewController(clock)
	ch0, _ := c.Counter(0)

	c.Start(ctx)
	ch0.Pulse()
	ch0.Pulse()
	clock.Advance(Window)
	clock.BlockUntilReady()
	waitReady(t, c)
	c.Acknowledge(ctx)

	c.Start(ctx)
	assert.Equal(t, uint64(0), ch0.Value())
	ch0.Pulse()
	clock.Advance(Window)
	clock.BlockUntilReady()
	waitReady(t, c)

	n, err := c.Count(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, uint64(2), c.Windows())
}

func TestControllerUnknownChannel(t *testing.T) {
	c := NewController(clockz.NewFakeClock())

	_, err := c.Counter(2)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
	_, err = c.Count(5)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestWindowTimerStaleOverflowIgnored(t *testing.T) {
	clock := clockz.NewFakeClock()
	w := NewWindowTimer(clock, time.Second)

	var mu sync.Mutex
	var fired []uint64
	w.OnOverflow(func(gen uint64) {
		mu.Lock()
		fired = append(fired, gen)
		mu.Unlock()
	})

	first := w.Start()
	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()

	// Re-arm before the first arming could overflow.
	second := w.Start()
	assert.NotEqual(t, first, second)

	clock.Advance(600 * time.Millisecond)
	clock.BlockUntilReady()
	time.Sleep(5 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, fired, "first arming must not fire")
	mu.Unlock()

	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, second, fired[0])
	mu.Unlock()
}

func TestWindowTimerStopPreventsOverflow(t *testing.T) {
	clock := clockz.NewFakeClock()
	w := NewWindowTimer(clock, time.Second)

	fired := make(chan uint64, 1)
	w.OnOverflow(func(gen uint64) { fired <- gen })

	w.Start()
	w.Stop()
	assert.False(t, w.Running())

	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestWindowTimerTicks(t *testing.T) {
	clock := clockz.NewFakeClock()
	w := NewWindowTimer(clock, Window)

	assert.Equal(t, uint32(0), w.Ticks())

	w.Start()
	clock.Advance(time.Second)
	clock.BlockUntilReady()
	assert.Equal(t, uint32(TickHz), w.Ticks())

	w.Stop()
	clock.Advance(time.Second)
	assert.Equal(t, uint32(TickHz), w.Ticks(), "ticks frozen after Stop")
}

func TestControllerStopDisarms(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	c := NewController(clock)
	ch0, _ := c.Counter(0)

	c.Start(ctx)
	ch0.Pulse()
	c.Stop()
	ch0.Pulse()

	assert.False(t, c.Active())
	assert.Equal(t, uint64(1), ch0.Value())

	clock.Advance(2 * Window)
	clock.BlockUntilReady()
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.IsReady())
	assert.Equal(t, uint64(0), c.Windows())
}

func TestControllerStopRetiresInFlightOverflow(t *testing.T) {
	c := NewController(clockz.NewFakeClock())

	c.Start(context.Background())
	gen := c.timer.Generation()
	c.Stop()

	// The overflow goroutine passed its cancel check before Stop ran.
	c.windowElapsed(gen)

	assert.False(t, c.IsReady())
	assert.Equal(t, uint64(0), c.Windows())
}

type windowEvent struct {
	signal   string
	window   int
	duration time.Duration
	count0   int
	count1   int
}

func TestControllerEmitsWindowSignals(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	c := NewController(clock)

	events := make(chan windowEvent, 16)
	record := func(_ context.Context, e *capitan.Event) {
		ev := windowEvent{signal: e.Signal().Name()}
		ev.window, _ = KeyWindow.From(e)
		ev.duration, _ = KeyDuration.From(e)
		ev.count0, _ = KeyCount0.From(e)
		ev.count1, _ = KeyCount1.From(e)
		events <- ev
	}
	started := capitan.Hook(WindowStarted, record)
	defer started.Close()
	acked := capitan.Hook(WindowAcknowledged, record)
	defer acked.Close()

	ch0, _ := c.Counter(0)
	ch1, _ := c.Counter(1)

	c.Start(ctx)
	for i := 0; i < 37; i++ {
		ch0.Pulse()
	}
	for i := 0; i < 11; i++ {
		ch1.Pulse()
	}
	clock.Advance(Window)
	clock.BlockUntilReady()
	waitReady(t, c)
	c.Acknowledge(ctx)

	// Delivery is asynchronous and other tests share the default instance,
	// so look for this controller's events by content.
	var sawStart, sawAck bool
	deadline := time.After(time.Second)
	for !(sawStart && sawAck) {
		select {
		case ev := <-events:
			switch ev.signal {
			case WindowStarted.Name():
				if ev.duration == Window {
					sawStart = true
				}
			case WindowAcknowledged.Name():
				if ev.count0 == 37 && ev.count1 == 11 {
					assert.Equal(t, 1, ev.window)
					sawAck = true
				}
			}
		case <-deadline:
			t.Fatalf("window signals not delivered: started=%v acknowledged=%v", sawStart, sawAck)
		}
	}
}
