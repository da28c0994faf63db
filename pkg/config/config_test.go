package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f.Load()
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, SensorReal, cfg.SensorType)
	assert.Equal(t, 1, cfg.Gain)
	assert.Equal(t, 30000.0, cfg.SampleRate)
	assert.Equal(t, 2, cfg.SignalChannel)
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7}, cfg.Channels)
	assert.Equal(t, ads1256.DefaultTiming(), cfg.DriverTiming())
	assert.Equal(t, time.Second, cfg.Window())
	assert.Equal(t, time.Second, cfg.IDRetry())
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, OutputConsole, cfg.Outputs[0].Type)
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"console", "mqtt"}, parseCSV(" console, ,mqtt "))
	assert.Empty(t, parseCSV(""))
}

func TestParseChannels(t *testing.T) {
	got, err := parseChannels("2, 3,7")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 7}, got)

	_, err = parseChannels("2,x")
	assert.Error(t, err)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	data := `{
		"sensor_type": "simulation",
		"gain": 4,
		"sample_rate": 1000,
		"signal_channel": 3,
		"channels": [3, 4],
		"timing": {"poll_limit": 10, "strict_ready": true},
		"power": {"max_power": 3000, "window_ms": 500, "burden_ohms": 33},
		"outputs": [{"type": "file", "file": {"dir": "/tmp/x"}}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, SensorSimulation, cfg.SensorType)
	assert.Equal(t, 4, cfg.Gain)
	assert.Equal(t, []int{3, 4}, cfg.Channels)
	assert.Equal(t, 10, cfg.Timing.PollLimit)
	assert.True(t, cfg.Timing.StrictReady)
	// untouched fields keep their defaults
	assert.Equal(t, 5, cfg.Timing.ReadySettleUs)
	assert.Equal(t, 3000.0, cfg.PowerParams().MaxPower)
	assert.Equal(t, 33.0, cfg.PowerParams().BurdenOhms)
	assert.Equal(t, 240.0, cfg.PowerParams().LineVoltage)
	assert.Equal(t, 500*time.Millisecond, cfg.Window())
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, "/tmp/x", cfg.Outputs[0].File.Dir)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := `
transport: gpiod
gpio:
  chip: gpiochip4
  sclk: 21
outputs:
  - type: mqtt
    mqtt:
      server: tcp://broker:1883
      state_topic: home/power
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := load(t, "-c", path)
	require.NoError(t, err)

	assert.Equal(t, TransportGPIOD, cfg.Transport)
	assert.Equal(t, "gpiochip4", cfg.GPIO.Chip)
	assert.Equal(t, 21, cfg.GPIO.SCLK)
	assert.Equal(t, 10, cfg.GPIO.MOSI)
	require.Len(t, cfg.Outputs, 1)
	require.NotNil(t, cfg.Outputs[0].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[0].MQTT.Server)
	assert.Equal(t, "home/power", cfg.Outputs[0].MQTT.StateTopic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := load(t, "--config", path)
	assert.ErrorContains(t, err, "parse config")
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gain": 4, "channels": [2, 3]}`), 0o644))

	cfg, err := load(t, "--config", path, "--gain", "8", "--channels", "2,5", "--strict-ready", "-v")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Gain)
	assert.Equal(t, []int{2, 5}, cfg.Channels)
	assert.True(t, cfg.Timing.StrictReady)
	assert.True(t, cfg.Verbose)
}

func TestMQTTFlagsCreateOutput(t *testing.T) {
	cfg, err := load(t, "--mqtt-server", "tcp://h:1883", "--mqtt-topic", "t/p")
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, OutputConsole, cfg.Outputs[0].Type)
	assert.Equal(t, OutputMQTT, cfg.Outputs[1].Type)
	assert.Equal(t, "tcp://h:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "t/p", cfg.Outputs[1].MQTT.StateTopic)
}

func TestMQTTFlagsApplyToExistingOutput(t *testing.T) {
	cfg, err := load(t, "--outputs", "mqtt", "--mqtt-user", "u", "--mqtt-pass", "p")
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, "u", cfg.Outputs[0].MQTT.Username)
	assert.Equal(t, "p", cfg.Outputs[0].MQTT.Password)
}

func TestDataDirFlag(t *testing.T) {
	cfg, err := load(t, "--outputs", "console,file", "--data-dir", "/var/lib/power")
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 2)
	require.NotNil(t, cfg.Outputs[1].File)
	assert.Equal(t, "/var/lib/power", cfg.Outputs[1].File.Dir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sensor type", func(c *Config) { c.SensorType = "x" }},
		{"transport", func(c *Config) { c.Transport = "i2c" }},
		{"gain", func(c *Config) { c.Gain = 3 }},
		{"rate", func(c *Config) { c.SampleRate = 12345 }},
		{"signal out of range", func(c *Config) { c.SignalChannel = 9 }},
		{"signal is common", func(c *Config) { c.SignalChannel = 8 }},
		{"signal not cycled", func(c *Config) { c.Channels = []int{3, 4} }},
		{"no channels", func(c *Config) { c.Channels = nil }},
		{"poll limit", func(c *Config) { c.Timing.PollLimit = 0 }},
		{"window", func(c *Config) { c.Power.WindowMs = 0 }},
		{"burden", func(c *Config) { c.Power.BurdenOhms = 0 }},
		{"output type", func(c *Config) { c.Outputs = []OutputConfig{{Type: "influx"}} }},
		{"file without dir", func(c *Config) { c.Outputs = []OutputConfig{{Type: OutputFile}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestSamplerChannels(t *testing.T) {
	cfg := DefaultConfig()
	chs, signal, err := cfg.SamplerChannels()
	require.NoError(t, err)
	assert.Equal(t, ads1256.AIN2, signal)
	assert.Equal(t, []ads1256.Channel{ads1256.AIN2, ads1256.AIN3, ads1256.AIN4, ads1256.AIN5, ads1256.AIN6, ads1256.AIN7}, chs)
}
