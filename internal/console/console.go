// Package console serves the calibration text protocol over a serial port.
//
// Lines starting with '*' are calibration commands, "?" prints the config of
// every channel and "d" dumps every channel's data array.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/sweeney/wind-sensor/internal/anemometer"
	"github.com/sweeney/wind-sensor/internal/command"
)

// DefaultBaudRate is the console speed of the sensor board.
const DefaultBaudRate = 115200

// Console reads commands from rw and writes replies back to it.
type Console struct {
	rw       io.ReadWriter
	channels []*anemometer.Channel

	mu sync.Mutex // serialises writes
}

// New returns a console over rw.
func New(rw io.ReadWriter, channels []*anemometer.Channel) *Console {
	return &Console{rw: rw, channels: channels}
}

// Open opens the serial port and returns a console over it together with
// the port, which the caller must close.
func Open(port string, baudRate int, channels []*anemometer.Channel) (*Console, io.Closer, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return New(p, channels), p, nil
}

// Serve handles lines until the reader is exhausted or ctx is cancelled.
// Cancellation takes effect at the next line; close the port to unblock a
// pending read.
func (c *Console) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(c.rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.Handle(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read console: %w", err)
	}
	return nil
}

// Handle executes one line. Protocol errors are reported to the peer; only
// write failures are returned.
func (c *Console) Handle(line string) error {
	switch {
	case line == "?":
		for _, ch := range c.channels {
			if err := c.write(func(w io.Writer) error { return command.PrintConfig(w, ch) }); err != nil {
				return err
			}
		}
		return nil

	case line == "d":
		for _, ch := range c.channels {
			label := ch.Label()
			err := c.write(func(w io.Writer) error {
				if label != "" {
					if _, err := io.WriteString(w, label); err != nil {
						return err
					}
				}
				return command.PrintDataArray(w, ch)
			})
			if err != nil {
				return err
			}
		}
		return nil

	case strings.HasPrefix(line, "*"):
		return c.calibrate(line)

	default:
		return c.reply("Unknown command : " + line)
	}
}

func (c *Console) calibrate(line string) error {
	cmd, err := command.Parse(line)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("console: rejected command")
		return c.reply("Bad request : " + line)
	}

	if err := command.Apply(cmd, c.channels); err != nil {
		log.Warn().Err(err).Str("line", line).Msg("console: rejected command")
		if errors.Is(err, command.ErrBadRequest) {
			return c.reply(fmt.Sprintf("Bad request : %d", cmd.Item))
		}
		return c.reply("Error : " + err.Error())
	}

	log.Info().
		Uint8("channel", cmd.Channel).
		Int("item", int(cmd.Item)).
		Float64("value", cmd.Value).
		Msg("console: calibration updated")
	return c.reply("OK")
}

func (c *Console) reply(msg string) error {
	return c.write(func(w io.Writer) error {
		_, err := io.WriteString(w, msg+"\r\n")
		return err
	})
}

func (c *Console) write(fn func(io.Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(c.rw); err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	return nil
}
