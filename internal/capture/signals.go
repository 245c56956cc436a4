package capture

import "github.com/zoobzio/capitan"

// Window lifecycle signals.
var (
	// WindowStarted is emitted when counting begins.
	WindowStarted = capitan.NewSignal(
		"wind.capture.window.started",
		"Measurement window started",
	)

	// WindowAcknowledged is emitted when the consumer releases a completed window.
	WindowAcknowledged = capitan.NewSignal(
		"wind.capture.window.acknowledged",
		"Completed window read and released",
	)
)

// Field keys for window events.
var (
	// KeyWindow is the window sequence number.
	KeyWindow = capitan.NewIntKey("window")

	// KeyDuration is the fixed window length.
	KeyDuration = capitan.NewDurationKey("duration")

	// KeyCount0 is channel 0's frozen pulse count.
	KeyCount0 = capitan.NewIntKey("count_0")

	// KeyCount1 is channel 1's frozen pulse count.
	KeyCount1 = capitan.NewIntKey("count_1")
)
