package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/soil-controller/internal/logic"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/api/umidade/registrar", cfg.Collector.Path)
	assert.Equal(t, 5*time.Second, cfg.Collector.Timeout.Duration())
	assert.Equal(t, 50.0, cfg.Control.TargetPct)
	assert.Equal(t, 10*time.Second, cfg.Control.ReportInterval.Duration())
	assert.Equal(t, 3000, cfg.Control.CalibDryRaw)
	assert.Equal(t, 1200, cfg.Control.CalibWetRaw)
	assert.Equal(t, 2*time.Second, cfg.Control.SamplePeriod.Duration())
	assert.Equal(t, 50*time.Millisecond, cfg.Control.LoopDelay.Duration())
	assert.Equal(t, 8, cfg.Control.FilterSize)
	assert.Equal(t, BackendSim, cfg.Hardware.Sensor)
	assert.Equal(t, BackendNone, cfg.Hardware.Keypad)
	assert.Equal(t, BackendSim, cfg.Hardware.Pump)
	assert.False(t, cfg.UsesSerial())
	assert.Empty(t, cfg.MQTT.Broker, "mqtt disabled by default")
}

func TestLoadFileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
collector:
  url: "http://192.168.0.103:8000"
  api_key: "secret"
  timeout: 2s
control:
  target_pct: 65
  report_interval: 30s
hardware:
  sensor: serial
  keypad: gpio
  pump: gpio
  pump_pin: 22
  serial:
    port: /dev/ttyUSB0
mqtt:
  broker: tcp://broker:1883
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://192.168.0.103:8000", cfg.Collector.URL)
	assert.Equal(t, "/api/umidade/registrar", cfg.Collector.Path, "default kept")
	assert.Equal(t, "secret", cfg.Collector.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Collector.Timeout.Duration())
	assert.Equal(t, 65.0, cfg.Control.TargetPct)
	assert.Equal(t, 3000, cfg.Control.CalibDryRaw, "default kept")
	assert.Equal(t, 22, cfg.Hardware.PumpPin)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Hardware.Serial.Port)
	assert.Equal(t, 115200, cfg.Hardware.Serial.Baud)
	assert.True(t, cfg.UsesSerial())
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)

	s := cfg.Settings()
	assert.Equal(t, logic.SettingsSnapshot{TargetPct: 65, CalibDryRaw: 3000, CalibWetRaw: 1200, ReportIntervalMs: 30000}, s)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SOIL_API_KEY", "from-env")
	path := writeConfig(t, `
collector:
  api_key: "${SOIL_API_KEY}"
  url: "${SOIL_COLLECTOR_URL_UNSET:http://fallback:8000}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Collector.APIKey)
	assert.Equal(t, "http://fallback:8000", cfg.Collector.URL)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "control: [unclosed"))
	assert.Error(t, err)
}

func TestLoadInvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "control:\n  sample_period: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"target", func(c *Config) { c.Control.TargetPct = 101 }, "target_pct"},
		{"interval", func(c *Config) { c.Control.ReportInterval = Duration(500 * time.Millisecond) }, "report_interval"},
		{"interval too long", func(c *Config) { c.Control.ReportInterval = Duration(1200 * time.Hour) }, "report_interval must be at most"},
		{"calibration", func(c *Config) { c.Control.CalibWetRaw = c.Control.CalibDryRaw }, "calib_wet_raw"},
		{"sensor", func(c *Config) { c.Hardware.Sensor = "adc" }, "hardware.sensor"},
		{"keypad", func(c *Config) { c.Hardware.Keypad = "usb" }, "hardware.keypad"},
		{"pump", func(c *Config) { c.Hardware.Pump = "log" }, "hardware.pump"},
		{"serial port", func(c *Config) { c.Hardware.Pump = BackendSerial }, "serial.port"},
		{"keypad pins", func(c *Config) { c.Hardware.Keypad = BackendGPIO; c.Hardware.RowPins = nil }, "row_pins"},
		{"collector", func(c *Config) { c.Collector.URL = "" }, "collector.url"},
		{"filter", func(c *Config) { c.Control.FilterSize = 0 }, "filter_size"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Control.TargetPct = -1
	cfg.Hardware.Sensor = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, logic.ErrTargetOutOfRange)
	assert.Contains(t, err.Error(), "hardware.sensor")
}

func TestValidateReportIntervalBounds(t *testing.T) {
	cfg := Default()
	cfg.Control.ReportInterval = Duration(MaxReportInterval)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(math.MaxUint32), cfg.Settings().ReportIntervalMs)

	cfg.Control.ReportInterval = Duration(MaxReportInterval + time.Millisecond)
	assert.Error(t, cfg.Validate())
}

func TestValidateDegenerateCalibration(t *testing.T) {
	cfg := Default()
	cfg.Control.CalibDryRaw = 2000
	cfg.Control.CalibWetRaw = 2000
	assert.ErrorIs(t, cfg.Validate(), logic.ErrDegenerateCalibration)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SOIL_TEST_VAR", "value")
	assert.Equal(t, "a value b", expandEnvVars("a ${SOIL_TEST_VAR} b"))
	assert.Equal(t, "def", expandEnvVars("${SOIL_TEST_UNSET:def}"))
	assert.Equal(t, "", expandEnvVars("${SOIL_TEST_UNSET}"))
	assert.Equal(t, "no vars", expandEnvVars("no vars"))
}

func TestDurationMarshal(t *testing.T) {
	v, err := Duration(90 * time.Second).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)
}
