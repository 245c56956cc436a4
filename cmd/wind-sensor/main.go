// Command wind-sensor counts anemometer pulses over fixed windows and
// publishes averaged wind readings to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"

	"github.com/sweeney/wind-sensor/internal/anemometer"
	"github.com/sweeney/wind-sensor/internal/calibration"
	"github.com/sweeney/wind-sensor/internal/capture"
	"github.com/sweeney/wind-sensor/internal/command"
	"github.com/sweeney/wind-sensor/internal/config"
	"github.com/sweeney/wind-sensor/internal/console"
	"github.com/sweeney/wind-sensor/internal/gpio"
	"github.com/sweeney/wind-sensor/internal/mqtt"
	"github.com/sweeney/wind-sensor/internal/status"
	"github.com/sweeney/wind-sensor/internal/web"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", "/etc/wind-sensor/config.yaml", "YAML config file (missing file uses defaults)")
	poll := flag.Duration("poll", 0, "Ready-flag polling interval")
	broker := flag.String("broker", "", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (0 to disable)")
	pinAnemo1 := flag.Int("pin-anemo1", gpio.DefaultPinAnemo1, "BCM pin number for anemometer 1")
	pinAnemo2 := flag.Int("pin-anemo2", gpio.DefaultPinAnemo2, "BCM pin number for anemometer 2")
	debounce := flag.Duration("debounce", 0, "Kernel edge debounce (0 to disable)")
	eeprom := flag.String("eeprom", "", "Calibration image file")
	serialPort := flag.String("serial", "", "Serial console port (empty to disable)")
	httpAddr := flag.String("http", "", "HTTP status address (empty to disable)")
	printConfig := flag.Bool("print-config", false, "Print calibration and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "poll":
			cfg.Poll = *poll
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "pin-anemo1":
			cfg.GPIO.Pins[0] = *pinAnemo1
		case "pin-anemo2":
			if len(cfg.GPIO.Pins) < 2 {
				cfg.GPIO.Pins = append(cfg.GPIO.Pins, *pinAnemo2)
			} else {
				cfg.GPIO.Pins[1] = *pinAnemo2
			}
		case "debounce":
			cfg.GPIO.Debounce = *debounce
		case "eeprom":
			cfg.Calibration.Path = *eeprom
		case "serial":
			cfg.Serial.Port = *serialPort
		case "http":
			cfg.HTTP.Addr = *httpAddr
		}
	})

	lvl, err := cfg.Level()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(lvl)

	if err := run(cfg, *printConfig); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, printConfig bool) error {
	if len(cfg.GPIO.Pins) > capture.NumChannels {
		return fmt.Errorf("gpio: %d pins configured, at most %d supported", len(cfg.GPIO.Pins), capture.NumChannels)
	}

	image, err := calibration.OpenImage(cfg.Calibration.Path)
	if err != nil {
		return fmt.Errorf("open calibration: %w", err)
	}
	store := calibration.NewStore(image)

	defer capitan.Shutdown()
	defer logWindowSignals()()

	ctrl := capture.NewController(clockz.RealClock)
	channels, err := newChannels(ctrl, store)
	if err != nil {
		return err
	}

	if printConfig {
		for _, ch := range channels {
			if err := command.PrintConfig(os.Stdout, ch); err != nil {
				return err
			}
		}
		return nil
	}

	source, err := gpio.NewRealSource(cfg.GPIO.Chip, cfg.GPIO.Debounce)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer source.Close()
	if err := watchPins(source, ctrl, cfg.GPIO.Pins); err != nil {
		return err
	}

	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.Backlog)
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:        cfg.Poll.Milliseconds(),
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		SerialPort:    cfg.Serial.Port,
		WindowSeconds: capture.WindowTicks,
		MeasureMax:    anemometer.MeasureMax,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(ctrl.Windows(), channelStatuses(channels))

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn().Err(err).Msg("failed to publish startup event")
	} else {
		log.Info().Msg("published startup event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	if cfg.Serial.Port != "" {
		con, port, err := console.Open(cfg.Serial.Port, cfg.Serial.BaudRate, channels)
		if err != nil {
			return err
		}
		defer port.Close()
		go func() {
			if err := con.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("serial console stopped")
			}
		}()
		log.Info().Str("port", cfg.Serial.Port).Int("baud", cfg.Serial.BaudRate).Msg("serial console open")
	}

	log.Info().
		Dur("poll", cfg.Poll).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.MQTT.Heartbeat).
		Ints("pins", cfg.GPIO.Pins).
		Dur("window", capture.Window).
		Msg("started")

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(ctx, ctrl, channels, publisher, publisher, tracker, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh)
	if ferr := image.Flush(); ferr != nil {
		log.Warn().Err(ferr).Msg("flush calibration")
	}
	return err
}

func newChannels(ctrl *capture.Controller, store *calibration.Store) ([]*anemometer.Channel, error) {
	channels := make([]*anemometer.Channel, 0, capture.NumChannels)
	for id := capture.ChannelID(0); id < capture.NumChannels; id++ {
		ch, err := anemometer.New(id, ctrl, store)
		if err != nil {
			return nil, fmt.Errorf("load channel %d: %w", id, err)
		}
		cal := ch.Calibration()
		log.Info().
			Uint8("channel", id).
			Bool("enabled", cal.Enabled).
			Float64("factor", cal.Factor).
			Float64("offset", cal.Offset).
			Msg("calibration loaded")
		channels = append(channels, ch)
	}
	return channels, nil
}

// watchPins routes edges on pins[i] to channel i's counter.
func watchPins(source gpio.Source, ctrl *capture.Controller, pins []int) error {
	for i, pin := range pins {
		ctr, err := ctrl.Counter(capture.ChannelID(i))
		if err != nil {
			return err
		}
		if err := source.Watch(pin, ctr); err != nil {
			return fmt.Errorf("watch channel %d: %w", i, err)
		}
	}
	return nil
}

func runLoop(ctx context.Context, ctrl *capture.Controller, channels []*anemometer.Channel, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()
	index := 0

	ctrl.Start(ctx)
	defer ctrl.Stop()

	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			} else {
				log.Info().Msg("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if ctrl.IsReady() {
				for _, ch := range channels {
					if err := ch.Read(index); err != nil {
						log.Warn().Err(err).Uint8("channel", ch.ID()).Msg("read channel")
					}
				}
				ctrl.Acknowledge(ctx)
				index++

				if index == anemometer.MeasureMax {
					m := average(channels, t)
					if len(m.Channels) > 0 {
						if err := publisher.Publish(m); err != nil {
							log.Warn().Err(err).Msg("publish error")
						}
					}
					if tracker != nil {
						tracker.RecordMeasurement(t)
					}
					for _, ch := range channels {
						if err := ch.Clear(anemometer.MeasureMax); err != nil {
							log.Warn().Err(err).Uint8("channel", ch.ID()).Msg("clear channel")
						}
					}
					index = 0
				}

				ctrl.Start(ctx)
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				log.Info().
					Dur("uptime", t.Sub(startOf(tracker, t))).
					Uint64("windows", ctrl.Windows()).
					Msg("heartbeat")

				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					tracker.Update(ctrl.Windows(), channelStatuses(channels))
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Warn().Err(err).Msg("heartbeat publish error")
				}
			}

			if tracker != nil {
				tracker.Update(ctrl.Windows(), channelStatuses(channels))
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
		}
	}
}

// average computes every channel's mean over a full sample buffer and
// collects the enabled ones with a finite mean into a measurement.
func average(channels []*anemometer.Channel, t time.Time) mqtt.Measurement {
	m := mqtt.Measurement{
		Timestamp: t,
		Samples:   anemometer.MeasureMax,
		Window:    capture.WindowTicks,
	}
	for _, ch := range channels {
		if err := ch.CalcAverage(anemometer.MeasureMax); err != nil {
			log.Warn().Err(err).Uint8("channel", ch.ID()).Msg("average channel")
			continue
		}
		if !ch.Enabled() {
			continue
		}
		avg := ch.Average()
		if math.IsNaN(avg) || math.IsInf(avg, 0) {
			cal := ch.Calibration()
			log.Warn().
				Uint8("channel", ch.ID()).
				Float64("factor", cal.Factor).
				Float64("offset", cal.Offset).
				Msg("channel not calibrated, average dropped")
			continue
		}
		log.Info().Uint8("channel", ch.ID()).Float64("average", avg).Msg("measurement")
		m.Channels = append(m.Channels, mqtt.ChannelReading{
			ID:      ch.ID(),
			Label:   ch.Label(),
			Average: avg,
		})
	}
	return m
}

// logWindowSignals logs window lifecycle signals at debug level and returns
// a func that unhooks them.
func logWindowSignals() func() {
	started := capitan.Hook(capture.WindowStarted, func(_ context.Context, e *capitan.Event) {
		n, _ := capture.KeyWindow.From(e)
		log.Debug().Int("window", n).Msg("window started")
	})
	acked := capitan.Hook(capture.WindowAcknowledged, func(_ context.Context, e *capitan.Event) {
		n, _ := capture.KeyWindow.From(e)
		c0, _ := capture.KeyCount0.From(e)
		c1, _ := capture.KeyCount1.From(e)
		log.Debug().Int("window", n).Int("count_0", c0).Int("count_1", c1).Msg("window read")
	})
	return func() {
		started.Close()
		acked.Close()
	}
}

func channelStatuses(channels []*anemometer.Channel) []status.ChannelStatus {
	out := make([]status.ChannelStatus, 0, len(channels))
	for _, ch := range channels {
		cal := ch.Calibration()
		samples := ch.Samples()
		out = append(out, status.ChannelStatus{
			ID:      ch.ID(),
			Label:   ch.Label(),
			Enabled: cal.Enabled,
			Factor:  cal.Factor,
			Offset:  cal.Offset,
			Average: ch.Average(),
			Samples: samples[:],
		})
	}
	return out
}

func startOf(tracker *status.Tracker, fallback time.Time) time.Time {
	if tracker == nil {
		return fallback
	}
	return tracker.Snapshot().StartTime
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
