// Command soil-controller reads a soil moisture probe, drives an irrigation
// pump, serves a keypad menu and reports readings to a remote collector.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/config"
	"github.com/sweeney/soil-controller/internal/display"
	"github.com/sweeney/soil-controller/internal/gpio"
	"github.com/sweeney/soil-controller/internal/keypad"
	"github.com/sweeney/soil-controller/internal/ledger"
	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/mqtt"
	"github.com/sweeney/soil-controller/internal/scheduler"
	"github.com/sweeney/soil-controller/internal/serialbridge"
	"github.com/sweeney/soil-controller/internal/sim"
	"github.com/sweeney/soil-controller/internal/status"
	"github.com/sweeney/soil-controller/internal/telemetry"
	"github.com/sweeney/soil-controller/internal/web"
)

// flagOff disables a feature from the command line.
const flagOff = "off"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration (missing file uses defaults)")
	httpAddr := flag.String("http", "", `HTTP status address, overrides http.addr ("off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address, overrides mqtt.broker ("off" disables)`)
	logLevel := flag.String("log-level", "", "Log level, overrides log.level")
	printState := flag.Bool("print-state", false, "Print the current sensor reading and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *httpAddr, *broker, *logLevel)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if err := run(cfg, *printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func applyOverrides(cfg *config.Config, httpAddr, broker, logLevel string) {
	switch httpAddr {
	case "":
	case flagOff:
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch broker {
	case "":
	case flagOff:
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !cfg.Colors,
		})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(cfg *config.Config, printState bool) error {
	hw, err := openHardware(cfg, time.Now)
	if err != nil {
		return err
	}
	defer hw.Close()

	if printState {
		return printReading(os.Stdout, hw.sensor, cfg.Settings(), 3*time.Second)
	}

	settings, err := logic.NewSettingsFrom(cfg.Settings())
	if err != nil {
		return fmt.Errorf("boot settings: %w", err)
	}

	// Ledger
	var history recorder
	var webHistory web.History
	if cfg.Database.Path != "" {
		l, err := ledger.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer l.Close()
		if n, err := l.DeleteOlderThan(time.Now(), cfg.Database.Retention.Duration()); err != nil {
			log.Warn().Err(err).Msg("ledger cleanup failed")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("pruned ledger")
		}
		history = l
		webHistory = l
	}

	// MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = discardPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, mqtt.Options{
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
		})
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	start := time.Now()
	tracker := status.NewTracker(start, status.Config{
		SamplePeriodMs: cfg.Control.SamplePeriod.Duration().Milliseconds(),
		LoopDelayMs:    cfg.Control.LoopDelay.Duration().Milliseconds(),
		HeartbeatMs:    cfg.Control.Heartbeat.Duration().Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		CollectorURL:   cfg.Collector.URL,
		Sensor:         cfg.Hardware.Sensor,
		Keypad:         cfg.Hardware.Keypad,
		Pump:           cfg.Hardware.Pump,
	})
	tracker.Update(0, false, false, settings.Snapshot(), logic.Counts{})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	keys := hw.keys
	var httpSrv *web.Server
	if cfg.HTTP.Addr != "" {
		queue := keypad.NewQueue(cfg.HTTP.KeypadQueue)
		keys = keypad.Multi{hw.keys, queue}
		httpSrv = web.New(cfg.HTTP.Addr, tracker, webHistory, queue)
	}

	reporter := telemetry.NewHTTPReporter(cfg.Collector.URL, cfg.Collector.Path, cfg.Collector.APIKey, cfg.Collector.Timeout.Duration())
	sched := scheduler.New(scheduler.Config{
		SamplePeriod:  cfg.Control.SamplePeriod.Duration(),
		ReportTimeout: cfg.Collector.Timeout.Duration(),
		FilterSize:    cfg.Control.FilterSize,
	}, settings, scheduler.Deps{
		Sensor:   hw.sensor,
		Keys:     keys,
		Renderer: display.NewPanel(tracker),
		Reporter: reporter,
		Pump:     hw.pump,
	}, start)
	sched.Redraw()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn().Err(err).Msg("failed to publish startup event")
	}

	if httpSrv != nil {
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	log.Info().
		Str("collector", reporter.URL()).
		Str("sensor", cfg.Hardware.Sensor).
		Str("keypad", cfg.Hardware.Keypad).
		Str("pump", cfg.Hardware.Pump).
		Float64("target", settings.Target()).
		Dur("report_interval", settings.ReportInterval()).
		Dur("sample_period", cfg.Control.SamplePeriod.Duration()).
		Str("broker", cfg.MQTT.Broker).
		Msg("started")

	ticker := time.NewTicker(cfg.Control.LoopDelay.Duration())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sched, publisher, publisher, history, tracker, cfg.Control.Heartbeat.Duration(), time.Now, ticker.C, sigCh)
}

// recorder persists loop activity. A nil recorder disables persistence.
type recorder interface {
	RecordAttempt(a telemetry.Attempt) error
	RecordPump(e logic.PumpEvent) error
}

func runLoop(sched *scheduler.Scheduler, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, history recorder, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx := context.Background()

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			log.Info().Str("signal", signalName).Msg("shutting down")

			t := now()
			ev, err := sched.Shutdown(t)
			if err != nil {
				log.Error().Err(err).Msg("failed to switch pump off")
			}
			if ev != nil {
				handlePump(*ev, publisher, history)
			}
			refresh(sched, tracker, mqttStatus)

			event := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      mqtt.EventShutdown,
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(tracker.Snapshot(), mqtt.EventShutdown, signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			} else {
				log.Info().Msg("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			res := sched.Step(ctx, t)

			if res.Report != nil {
				a := *res.Report
				tracker.SetLastReport(status.Report{
					Timestamp: a.Timestamp,
					Moisture:  a.Moisture,
					Status:    a.Status,
					Error:     a.ErrString(),
				})
				if history != nil {
					if err := history.RecordAttempt(a); err != nil {
						log.Warn().Err(err).Msg("ledger write failed")
					}
				}
			}
			if res.Pump != nil {
				handlePump(*res.Pump, publisher, history)
			}

			refresh(sched, tracker, mqttStatus)

			// Check for heartbeat
			if hb := sched.CheckHeartbeat(t, heartbeat); hb != nil {
				log.Info().
					Dur("uptime", hb.Uptime).
					Int("pump_on", hb.Counts.PumpOn).
					Int("reports", hb.Counts.Reports).
					Int("report_failures", hb.Counts.ReportFailures).
					Msg("heartbeat")

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      mqtt.EventHeartbeat,
					RawPayload: status.FormatStatusEvent(tracker.Snapshot(), mqtt.EventHeartbeat, ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Warn().Err(err).Msg("heartbeat publish error")
				}
			}
		}
	}
}

func handlePump(ev logic.PumpEvent, publisher mqtt.Publisher, history recorder) {
	// Don't stop the loop on publish failure
	if err := publisher.PublishPump(ev); err != nil {
		log.Warn().Err(err).Str("pump", string(ev.State)).Msg("publish error")
	}
	if history != nil {
		if err := history.RecordPump(ev); err != nil {
			log.Warn().Err(err).Msg("ledger write failed")
		}
	}
}

// refresh copies the loop state into the tracker for HTTP and MQTT consumers.
func refresh(sched *scheduler.Scheduler, tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus) {
	moisture, ok := sched.Moisture()
	tracker.Update(moisture, ok, sched.View().PumpOn, sched.Settings(), sched.Counts())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

// hardware is the set of backends selected by the configuration.
type hardware struct {
	sensor  logic.RawSource
	keys    keypad.Input
	pump    logic.Switch
	closers []io.Closer
}

// Close releases the backends in reverse order of opening.
func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close hardware")
		}
	}
}

func openHardware(cfg *config.Config, now func() time.Time) (*hardware, error) {
	hc := cfg.Hardware
	hw := &hardware{}

	var bridge *serialbridge.Bridge
	if cfg.UsesSerial() {
		b, err := serialbridge.Open(hc.Serial.Port, hc.Serial.Baud, serialbridge.Options{
			StaleAfter: hc.Serial.StaleAfter.Duration(),
		})
		if err != nil {
			return nil, err
		}
		bridge = b
		hw.closers = append(hw.closers, b)
	}

	var soil *sim.Soil
	if hc.Sensor == config.BackendSim || hc.Pump == config.BackendSim {
		soil = sim.NewSoil(cfg.SimConfig(), now)
	}

	switch hc.Sensor {
	case config.BackendSerial:
		hw.sensor = bridge
	default:
		hw.sensor = soil
	}

	switch hc.Pump {
	case config.BackendGPIO:
		out, err := gpio.NewRealOutput(hc.Chip, hc.PumpPin, hc.PumpActiveLow)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("init pump output: %w", err)
		}
		hw.pump = out
		hw.closers = append(hw.closers, out)
	case config.BackendSerial:
		hw.pump = bridge
	default:
		hw.pump = soil
	}

	switch hc.Keypad {
	case config.BackendGPIO:
		m, err := gpio.NewRealMatrix(hc.Chip, hc.RowPins, hc.ColPins)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("init keypad matrix: %w", err)
		}
		kp := gpio.NewKeypad(m, hc.KeypadDebounce)
		hw.keys = kp
		hw.closers = append(hw.closers, kp)
	case config.BackendSerial:
		hw.keys = bridge
	default:
		hw.keys = keypad.None{}
	}

	return hw, nil
}

// printReading waits up to timeout for a sample and prints it.
func printReading(w io.Writer, sensor logic.RawSource, s logic.SettingsSnapshot, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		raw, err := sensor.Read()
		if errors.Is(err, serialbridge.ErrNoData) && time.Now().Before(deadline) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		pct, err := logic.AdcToPct(raw, s.CalibDryRaw, s.CalibWetRaw)
		if err != nil {
			fmt.Fprintf(w, "raw: %d, moisture: unknown (%v)\n", raw, err)
			return nil
		}
		fmt.Fprintf(w, "raw: %d, moisture: %.2f%%\n", raw, pct)
		return nil
	}
}

// discardPublisher is used when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) PublishPump(logic.PumpEvent) error    { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
func (discardPublisher) IsConnected() bool                    { return false }

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
