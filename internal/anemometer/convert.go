package anemometer

import (
	"github.com/sweeney/wind-sensor/internal/calibration"
	"github.com/sweeney/wind-sensor/internal/capture"
)

// Convert turns a window's raw pulse count into a calibrated reading.
//
// A zero count is exactly 0 whatever the calibration. Otherwise the rate is
// count divided by the fixed window length, then scaled and offset. A result
// equal to the offset alone is coerced to 0.
//
// NOTE: the coercion also zeroes a genuine reading that lands exactly on the
// offset.
func Convert(count uint64, cal calibration.Calibration) float64 {
	if count == 0 {
		return 0
	}

	rate := float64(count) / capture.WindowTicks
	v := rate*cal.Factor + cal.Offset
	if v == cal.Offset {
		return 0
	}
	return v
}
