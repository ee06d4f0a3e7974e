// Package config loads the controller configuration from YAML.
// Values set from the keypad at runtime are never written back.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/soil-controller/internal/gpio"
	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/serialbridge"
	"github.com/sweeney/soil-controller/internal/sim"
)

// MaxReportInterval is the longest interval the settings can hold.
const MaxReportInterval = time.Duration(math.MaxUint32) * time.Millisecond

// Hardware backends.
const (
	BackendSerial = "serial"
	BackendSim    = "sim"
	BackendGPIO   = "gpio"
	BackendNone   = "none"
)

// Config represents the application configuration
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Control   ControlConfig   `yaml:"control"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// CollectorConfig is the remote telemetry endpoint.
type CollectorConfig struct {
	URL     string   `yaml:"url"`  // scheme://host:port
	Path    string   `yaml:"path"` // default /api/umidade/registrar
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"` // per-attempt bound; the loop blocks at most this long
}

// ControlConfig holds the boot values of the runtime settings and the loop timings.
type ControlConfig struct {
	TargetPct      float64  `yaml:"target_pct"`
	ReportInterval Duration `yaml:"report_interval"`
	CalibDryRaw    int      `yaml:"calib_dry_raw"`
	CalibWetRaw    int      `yaml:"calib_wet_raw"`
	SamplePeriod   Duration `yaml:"sample_period"`
	LoopDelay      Duration `yaml:"loop_delay"`
	FilterSize     int      `yaml:"filter_size"`
	Heartbeat      Duration `yaml:"heartbeat"` // 0 disables
}

// HardwareConfig selects and wires the sensor, keypad and pump backends.
type HardwareConfig struct {
	Sensor string `yaml:"sensor"` // serial | sim
	Keypad string `yaml:"keypad"` // gpio | serial | none
	Pump   string `yaml:"pump"`   // gpio | serial | sim

	Chip           string `yaml:"chip"`
	PumpPin        int    `yaml:"pump_pin"`
	PumpActiveLow  bool   `yaml:"pump_active_low"`
	RowPins        []int  `yaml:"row_pins"`
	ColPins        []int  `yaml:"col_pins"`
	KeypadDebounce int    `yaml:"keypad_debounce"` // consecutive scans

	Serial SerialConfig `yaml:"serial"`
	Sim    SimConfig    `yaml:"sim"`
}

// SerialConfig is the MCU bridge port.
type SerialConfig struct {
	Port       string   `yaml:"port"`
	Baud       int      `yaml:"baud"`
	StaleAfter Duration `yaml:"stale_after"`
}

// SimConfig tunes the simulated soil.
type SimConfig struct {
	InitialPct float64 `yaml:"initial_pct"`
	DryRate    float64 `yaml:"dry_rate"` // percent per minute
	WetRate    float64 `yaml:"wet_rate"` // percent per minute while pumping
	Noise      int     `yaml:"noise"`
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig contains the status server settings. An empty addr disables it.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	KeypadQueue int    `yaml:"keypad_queue"`
}

// DatabaseConfig contains ledger settings. An empty path disables the ledger.
type DatabaseConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is present: simulated
// hardware, factory control defaults.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			URL:     "http://localhost:8000",
			Path:    "/api/umidade/registrar",
			APIKey:  "",
			Timeout: Duration(5 * time.Second),
		},
		Control: ControlConfig{
			TargetPct:      logic.DefaultTarget,
			ReportInterval: Duration(logic.DefaultReportIntervalMs * time.Millisecond),
			CalibDryRaw:    logic.DefaultCalibDry,
			CalibWetRaw:    logic.DefaultCalibWet,
			SamplePeriod:   Duration(2 * time.Second),
			LoopDelay:      Duration(50 * time.Millisecond),
			FilterSize:     logic.DefaultFilterSize,
			Heartbeat:      Duration(15 * time.Minute),
		},
		Hardware: HardwareConfig{
			Sensor:         BackendSim,
			Keypad:         BackendNone,
			Pump:           BackendSim,
			Chip:           gpio.DefaultChip,
			PumpPin:        gpio.PinPump,
			PumpActiveLow:  true,
			RowPins:        append([]int(nil), gpio.DefaultRowPins...),
			ColPins:        append([]int(nil), gpio.DefaultColPins...),
			KeypadDebounce: 1,
			Serial: SerialConfig{
				Baud:       serialbridge.DefaultBaudRate,
				StaleAfter: Duration(10 * time.Second),
			},
			Sim: SimConfig{
				InitialPct: sim.DefaultInitialPct,
				DryRate:    sim.DefaultDryRate,
				WetRate:    sim.DefaultWetRate,
				Noise:      sim.DefaultNoise,
			},
		},
		MQTT: MQTTConfig{
			BufferSize: 100,
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			KeypadQueue: 16,
		},
		Database: DatabaseConfig{
			Path:      "./soil-controller.sqlite",
			Retention: Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Colors: true,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// ${VAR} and ${VAR:default} are expanded from the environment first.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Collector.URL == "" {
		add("collector.url is required")
	}
	if c.Collector.Timeout <= 0 {
		add("collector.timeout must be positive")
	}

	if c.Control.TargetPct < 0 || c.Control.TargetPct > 100 {
		add("control.target_pct: %w", logic.ErrTargetOutOfRange)
	}
	if c.Control.ReportInterval.Duration() < logic.MinReportIntervalMs*time.Millisecond {
		add("control.report_interval: %w", logic.ErrIntervalTooShort)
	}
	if c.Control.ReportInterval.Duration() > MaxReportInterval {
		add("control.report_interval must be at most %s", MaxReportInterval)
	}
	if c.Control.CalibDryRaw == c.Control.CalibWetRaw {
		add("control.calib_dry_raw and control.calib_wet_raw: %w", logic.ErrDegenerateCalibration)
	}
	if c.Control.SamplePeriod <= 0 {
		add("control.sample_period must be positive")
	}
	if c.Control.LoopDelay <= 0 {
		add("control.loop_delay must be positive")
	}
	if c.Control.FilterSize <= 0 {
		add("control.filter_size must be positive")
	}
	if c.Control.Heartbeat < 0 {
		add("control.heartbeat must not be negative")
	}

	h := c.Hardware
	if !oneOf(h.Sensor, BackendSerial, BackendSim) {
		add("hardware.sensor %q: want serial or sim", h.Sensor)
	}
	if !oneOf(h.Keypad, BackendGPIO, BackendSerial, BackendNone) {
		add("hardware.keypad %q: want gpio, serial or none", h.Keypad)
	}
	if !oneOf(h.Pump, BackendGPIO, BackendSerial, BackendSim) {
		add("hardware.pump %q: want gpio, serial or sim", h.Pump)
	}
	if c.UsesSerial() && h.Serial.Port == "" {
		add("hardware.serial.port is required by the serial backend")
	}
	if h.Keypad == BackendGPIO && (len(h.RowPins) == 0 || len(h.ColPins) == 0) {
		add("hardware.row_pins and hardware.col_pins are required by the gpio keypad")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level %q: %w", c.Log.Level, err)
	}

	return errors.Join(errs...)
}

// UsesSerial reports whether any backend talks to the MCU bridge.
func (c *Config) UsesSerial() bool {
	h := c.Hardware
	return h.Sensor == BackendSerial || h.Keypad == BackendSerial || h.Pump == BackendSerial
}

// Settings returns the boot values of the runtime settings.
func (c *Config) Settings() logic.SettingsSnapshot {
	return logic.SettingsSnapshot{
		TargetPct:        c.Control.TargetPct,
		CalibDryRaw:      c.Control.CalibDryRaw,
		CalibWetRaw:      c.Control.CalibWetRaw,
		ReportIntervalMs: uint32(c.Control.ReportInterval.Duration().Milliseconds()),
	}
}

// SimConfig returns the soil model configuration.
func (c *Config) SimConfig() sim.Config {
	out := sim.DefaultConfig()
	out.InitialPct = c.Hardware.Sim.InitialPct
	out.DryRate = c.Hardware.Sim.DryRate
	out.WetRate = c.Hardware.Sim.WetRate
	out.Noise = c.Hardware.Sim.Noise
	out.Seed = time.Now().UnixNano()
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

var envVarRe = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarRe.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
