// Package command implements the calibration text protocol used on the
// serial console, plus the config and data-array printers.
//
// A calibration line is "*<sensor><item> <value>". Sensor digit 3 addresses
// the first anemometer and 4 the second. Items are 1 (enable, 0 disables),
// 2 (factor) and 3 (offset).
package command

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sweeney/wind-sensor/internal/anemometer"
)

// Item selects the calibration field a command updates.
type Item int

const (
	ItemEnable Item = 1
	ItemFactor Item = 2
	ItemOffset Item = 3
)

// firstSensorDigit is the selector digit of channel 0.
const firstSensorDigit = 3

var (
	// ErrMalformed is returned for a line that is not "*<sensor><item> <value>".
	ErrMalformed = errors.New("command: malformed line")

	// ErrUnknownSensor is returned when the sensor digit names no channel.
	ErrUnknownSensor = errors.New("command: unknown sensor")

	// ErrBadRequest is returned for an unknown item selector.
	ErrBadRequest = errors.New("command: bad request")
)

// Command is a parsed calibration update.
type Command struct {
	Channel uint8
	Item    Item
	Value   float64
}

// Parse decodes a calibration line. Item validity is checked by Apply so the
// diagnostic can name the rejected item.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 || line[0] != '*' {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	sensor, item := line[1], line[2]
	if !isDigit(sensor) || !isDigit(item) {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	if int(sensor-'0') < firstSensorDigit {
		return Command{}, fmt.Errorf("%w: %c", ErrUnknownSensor, sensor)
	}

	var value float64
	if len(line) > 3 {
		v, err := strconv.ParseFloat(strings.TrimSpace(line[3:]), 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: value %q: %v", ErrMalformed, line[3:], err)
		}
		value = v
	}

	return Command{
		Channel: sensor - '0' - firstSensorDigit,
		Item:    Item(item - '0'),
		Value:   value,
	}, nil
}

// Apply routes cmd to its channel's setter, which persists the change.
func Apply(cmd Command, channels []*anemometer.Channel) error {
	if int(cmd.Channel) >= len(channels) {
		return fmt.Errorf("%w: %d", ErrUnknownSensor, int(cmd.Channel)+firstSensorDigit)
	}
	ch := channels[cmd.Channel]

	switch cmd.Item {
	case ItemEnable:
		return ch.SetEnabled(math.Trunc(cmd.Value) != 0)
	case ItemFactor:
		return ch.SetFactor(cmd.Value)
	case ItemOffset:
		return ch.SetOffset(cmd.Value)
	default:
		return fmt.Errorf("%w: item %d", ErrBadRequest, cmd.Item)
	}
}

// PrintConfig writes the channel's selectors and current calibration.
func PrintConfig(w io.Writer, ch *anemometer.Channel) error {
	cal := ch.Calibration()
	sel := int(ch.ID()) + firstSensorDigit
	enabled := 0
	if cal.Enabled {
		enabled = 1
	}

	_, err := fmt.Fprintf(w,
		"Anemometer :\r\n"+
			"\t*%d1 enable :\t%d\t\t\tenable : 1, disable : 0\r\n"+
			"\t*%d2 factor:\t%.2f\t\tcan be a float value. ex: 42.42\r\n"+
			"\t*%d3 offset:\t%.2f\t\tcan be a float value. ex: 42.42\r\n",
		sel, enabled, sel, cal.Factor, sel, cal.Offset)
	return err
}

// PrintDataArray dumps the channel's sample buffer for calibration work.
func PrintDataArray(w io.Writer, ch *anemometer.Channel) error {
	samples := ch.Samples()

	var b strings.Builder
	b.WriteString("\r\n")
	for i, v := range samples {
		fmt.Fprintf(&b, "%d\t%.3f\r\n", i, v)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
