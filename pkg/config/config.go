package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/power"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"
	TransportSPIDev  = "spidev"
	TransportGPIOD   = "gpiod"
	OutputConsole    = "console"
	OutputFile       = "file"
	OutputMQTT       = "mqtt"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type FileConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	LiveFile    string `json:"live_file,omitempty" yaml:"live_file,omitempty"`
	HistoryFile string `json:"history_file,omitempty" yaml:"history_file,omitempty"`
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	LiveSamples int    `json:"live_samples,omitempty" yaml:"live_samples,omitempty"`
}

type OutputConfig struct {
	Type string      `json:"type" yaml:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	File *FileConfig `json:"file,omitempty" yaml:"file,omitempty"`
}

// SPIConfig is used by the spidev transport. Pins are periph.io names.
type SPIConfig struct {
	Port    string `json:"port" yaml:"port"`
	SpeedHz int64  `json:"speed_hz" yaml:"speed_hz"`
	CSPin   string `json:"cs_pin" yaml:"cs_pin"`
	DRDYPin string `json:"drdy_pin" yaml:"drdy_pin"`
	RSTPin  string `json:"rst_pin" yaml:"rst_pin"`
}

// GPIOConfig is used by the gpiod transport. Lines are chip offsets.
type GPIOConfig struct {
	Chip   string `json:"chip" yaml:"chip"`
	TclkNs int    `json:"tclk_ns" yaml:"tclk_ns"`
	SCLK   int    `json:"sclk" yaml:"sclk"`
	MOSI   int    `json:"mosi" yaml:"mosi"`
	MISO   int    `json:"miso" yaml:"miso"`
	CS     int    `json:"cs" yaml:"cs"`
	DRDY   int    `json:"drdy" yaml:"drdy"`
	RST    int    `json:"rst" yaml:"rst"`
}

type TimingConfig struct {
	PollLimit        int  `json:"poll_limit" yaml:"poll_limit"`
	ReadySettleUs    int  `json:"ready_settle_us" yaml:"ready_settle_us"`
	InterByteUs      int  `json:"inter_byte_us" yaml:"inter_byte_us"`
	RegisterSettleUs int  `json:"register_settle_us" yaml:"register_settle_us"`
	DataSettleUs     int  `json:"data_settle_us" yaml:"data_settle_us"`
	ConfigSettleUs   int  `json:"config_settle_us" yaml:"config_settle_us"`
	ResetPulseMs     int  `json:"reset_pulse_ms" yaml:"reset_pulse_ms"`
	IDRetryMs        int  `json:"id_retry_ms" yaml:"id_retry_ms"`
	StrictReady      bool `json:"strict_ready" yaml:"strict_ready"`
}

type PowerConfig struct {
	FullScale   float64 `json:"full_scale" yaml:"full_scale"`
	Midpoint    float64 `json:"midpoint" yaml:"midpoint"`
	BurdenOhms  float64 `json:"burden_ohms" yaml:"burden_ohms"`
	TurnsRatio  float64 `json:"turns_ratio" yaml:"turns_ratio"`
	LineVoltage float64 `json:"line_voltage" yaml:"line_voltage"`
	MaxPower    float64 `json:"max_power" yaml:"max_power"`
	WindowMs    int     `json:"window_ms" yaml:"window_ms"`
}

// SimulationConfig shapes the signal produced by the simulated device.
type SimulationConfig struct {
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
}

type Config struct {
	SensorType    string           `json:"sensor_type" yaml:"sensor_type"`
	Transport     string           `json:"transport" yaml:"transport"`
	SPI           SPIConfig        `json:"spi" yaml:"spi"`
	GPIO          GPIOConfig       `json:"gpio" yaml:"gpio"`
	Gain          int              `json:"gain" yaml:"gain"`
	SampleRate    float64          `json:"sample_rate" yaml:"sample_rate"`
	SignalChannel int              `json:"signal_channel" yaml:"signal_channel"`
	Channels      []int            `json:"channels" yaml:"channels"`
	Timing        TimingConfig     `json:"timing" yaml:"timing"`
	Power         PowerConfig      `json:"power" yaml:"power"`
	Simulation    SimulationConfig `json:"simulation" yaml:"simulation"`
	Outputs       []OutputConfig   `json:"outputs" yaml:"outputs"`
	Quiet         bool             `json:"quiet" yaml:"quiet"`
	Verbose       bool             `json:"verbose" yaml:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorReal,
		Transport:  TransportSPIDev,
		SPI: SPIConfig{
			SpeedHz: 1920000,
			CSPin:   "GPIO22",
			DRDYPin: "GPIO17",
			RSTPin:  "GPIO18",
		},
		GPIO: GPIOConfig{
			Chip:   "gpiochip0",
			TclkNs: 500,
			SCLK:   11,
			MOSI:   10,
			MISO:   9,
			CS:     22,
			DRDY:   17,
			RST:    18,
		},
		Gain:          1,
		SampleRate:    30000,
		SignalChannel: 2,
		Channels:      []int{2, 3, 4, 5, 6, 7},
		Timing: TimingConfig{
			PollLimit:        5000000,
			ReadySettleUs:    5,
			InterByteUs:      2,
			RegisterSettleUs: 30,
			DataSettleUs:     1000,
			ConfigSettleUs:   500,
			ResetPulseMs:     5,
			IDRetryMs:        1000,
		},
		Power: PowerConfig{
			FullScale:   5.0,
			Midpoint:    2.5,
			BurdenOhms:  50,
			TurnsRatio:  2000,
			LineVoltage: 240,
			MaxPower:    5000,
			WindowMs:    1000,
		},
		Simulation: SimulationConfig{Frequency: 50, Amplitude: 0.25},
		Outputs:    []OutputConfig{{Type: OutputConsole}},
	}
}

// Flags holds the command line overrides bound to a flag set.
type Flags struct {
	fs            *pflag.FlagSet
	path          *string
	sensorType    *string
	transport     *string
	spiPort       *string
	spiSpeed      *int64
	gain          *int
	sampleRate    *float64
	signalChannel *int
	channels      *string
	pollLimit     *int
	strictReady   *bool
	maxPower      *float64
	outputs       *string
	dataDir       *string
	mqttServer    *string
	mqttUser      *string
	mqttPass      *string
	mqttClientID  *string
	mqttTopic     *string
	quiet         *bool
	verbose       *bool
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	return &Flags{
		fs:            fs,
		path:          fs.StringP("config", "c", "", "Path to JSON or YAML config file"),
		sensorType:    fs.String("sensor-type", "", "sensor type: real|simulation"),
		transport:     fs.String("transport", "", "bus transport: spidev|gpiod"),
		spiPort:       fs.String("spi-port", "", "SPI port name (e.g. /dev/spidev0.0)"),
		spiSpeed:      fs.Int64("spi-speed", 0, "SPI clock in Hz"),
		gain:          fs.Int("gain", 0, "PGA gain (1,2,4,...,64)"),
		sampleRate:    fs.Float64("sample-rate", 0, "ADS1256 data rate (SPS)"),
		signalChannel: fs.Int("signal-channel", 0, "input carrying the transformer signal"),
		channels:      fs.String("channels", "", "Comma-separated channel cycle e.g. 2,3,4"),
		pollLimit:     fs.Int("poll-limit", 0, "DRDY poll iterations before giving up"),
		strictReady:   fs.Bool("strict-ready", false, "drop samples whose DRDY poll timed out"),
		maxPower:      fs.Float64("max-power", 0, "spike filter ceiling in watts"),
		outputs:       fs.String("outputs", "", "Comma-separated outputs (console,file,mqtt)"),
		dataDir:       fs.String("data-dir", "", "directory for the file output"),
		mqttServer:    fs.String("mqtt-server", "", "MQTT server (tcp://host:port)"),
		mqttUser:      fs.String("mqtt-user", "", "MQTT username"),
		mqttPass:      fs.String("mqtt-pass", "", "MQTT password"),
		mqttClientID:  fs.String("mqtt-client-id", "", "MQTT client id"),
		mqttTopic:     fs.String("mqtt-topic", "", "MQTT state topic"),
		quiet:         fs.BoolP("quiet", "q", false, "suppress informational logging"),
		verbose:       fs.BoolP("verbose", "v", false, "enable debug logging"),
	}
}

// Load builds the configuration from defaults, the optional config file and
// the flags. Flags override values present in the file.
func (f *Flags) Load() (Config, error) {
	cfg := DefaultConfig()

	if *f.path != "" {
		if err := loadFile(*f.path, &cfg); err != nil {
			return cfg, err
		}
	}

	changed := f.fs.Changed
	if changed("sensor-type") {
		cfg.SensorType = *f.sensorType
	}
	if changed("transport") {
		cfg.Transport = *f.transport
	}
	if changed("spi-port") {
		cfg.SPI.Port = *f.spiPort
	}
	if changed("spi-speed") {
		cfg.SPI.SpeedHz = *f.spiSpeed
	}
	if changed("gain") {
		cfg.Gain = *f.gain
	}
	if changed("sample-rate") {
		cfg.SampleRate = *f.sampleRate
	}
	if changed("signal-channel") {
		cfg.SignalChannel = *f.signalChannel
	}
	if changed("channels") {
		chs, err := parseChannels(*f.channels)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = chs
	}
	if changed("poll-limit") {
		cfg.Timing.PollLimit = *f.pollLimit
	}
	if changed("strict-ready") {
		cfg.Timing.StrictReady = *f.strictReady
	}
	if changed("max-power") {
		cfg.Power.MaxPower = *f.maxPower
	}
	if changed("outputs") {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*f.outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if changed("data-dir") {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputFile {
				if cfg.Outputs[i].File == nil {
					cfg.Outputs[i].File = &FileConfig{}
				}
				cfg.Outputs[i].File.Dir = *f.dataDir
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputFile, File: &FileConfig{Dir: *f.dataDir}})
		}
	}
	// map mqtt flags into every mqtt output (create one if missing)
	if changed("mqtt-server") || changed("mqtt-user") || changed("mqtt-pass") || changed("mqtt-client-id") || changed("mqtt-topic") {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				f.applyMQTT(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			f.applyMQTT(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if changed("quiet") {
		cfg.Quiet = *f.quiet
	}
	if changed("verbose") {
		cfg.Verbose = *f.verbose
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (f *Flags) applyMQTT(m *MQTTConfig) {
	if f.fs.Changed("mqtt-server") {
		m.Server = *f.mqttServer
	}
	if f.fs.Changed("mqtt-user") {
		m.Username = *f.mqttUser
	}
	if f.fs.Changed("mqtt-pass") {
		m.Password = *f.mqttPass
	}
	if f.fs.Changed("mqtt-client-id") {
		m.ClientID = *f.mqttClientID
	}
	if f.fs.Changed("mqtt-topic") {
		m.StateTopic = *f.mqttTopic
	}
}

// loadFile decodes a YAML file for .yaml/.yml extensions and JSON otherwise.
func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the driver cannot use.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	switch c.Transport {
	case TransportSPIDev, TransportGPIOD:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if _, err := ads1256.ParseGain(c.Gain); err != nil {
		return err
	}
	if _, err := ads1256.ParseDataRate(c.SampleRate); err != nil {
		return err
	}
	if _, _, err := c.SamplerChannels(); err != nil {
		return err
	}
	if c.Timing.PollLimit < 1 {
		return errors.New("poll-limit must be > 0")
	}
	if c.Power.WindowMs <= 0 {
		return errors.New("window_ms must be > 0")
	}
	if c.Power.BurdenOhms <= 0 {
		return errors.New("burden_ohms must be > 0")
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole, OutputMQTT:
		case OutputFile:
			if o.File == nil || o.File.Dir == "" {
				return errors.New("file output requires a directory")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

// SamplerChannels returns the channel cycle and the signal channel.
func (c Config) SamplerChannels() ([]ads1256.Channel, ads1256.Channel, error) {
	signal, err := parseInput(c.SignalChannel)
	if err != nil {
		return nil, 0, err
	}
	if len(c.Channels) == 0 {
		return nil, 0, errors.New("no channels")
	}
	out := make([]ads1256.Channel, 0, len(c.Channels))
	found := false
	for _, ch := range c.Channels {
		v, err := parseInput(ch)
		if err != nil {
			return nil, 0, err
		}
		if v == signal {
			found = true
		}
		out = append(out, v)
	}
	if !found {
		return nil, 0, fmt.Errorf("signal channel %d not in channels %v", c.SignalChannel, c.Channels)
	}
	return out, signal, nil
}

// parseInput accepts AIN0..AIN7. AINCOM is the common reference, not an input.
func parseInput(ch int) (ads1256.Channel, error) {
	v, err := ads1256.ParseChannel(ch)
	if err != nil {
		return 0, err
	}
	if v == ads1256.AINCOM {
		return 0, fmt.Errorf("%w: %d is the common input", ads1256.ErrInvalidChannel, ch)
	}
	return v, nil
}

// DriverTiming converts the timing section for the driver.
func (c Config) DriverTiming() ads1256.Timing {
	us := func(n int) time.Duration { return time.Duration(n) * time.Microsecond }
	return ads1256.Timing{
		PollLimit:        c.Timing.PollLimit,
		ReadySettle:      us(c.Timing.ReadySettleUs),
		InterByte:        us(c.Timing.InterByteUs),
		RegisterSettle:   us(c.Timing.RegisterSettleUs),
		DataSettle:       us(c.Timing.DataSettleUs),
		ConfigSettle:     us(c.Timing.ConfigSettleUs),
		ContinuousSettle: us(c.Timing.ReadySettleUs),
		ResetPulse:       time.Duration(c.Timing.ResetPulseMs) * time.Millisecond,
	}
}

// IDRetry is the back-off between identity checks at startup.
func (c Config) IDRetry() time.Duration {
	return time.Duration(c.Timing.IDRetryMs) * time.Millisecond
}

// PowerParams converts the power section for the sampler.
func (c Config) PowerParams() power.Params {
	return power.Params{
		FullScale:   c.Power.FullScale,
		Midpoint:    c.Power.Midpoint,
		BurdenOhms:  c.Power.BurdenOhms,
		TurnsRatio:  c.Power.TurnsRatio,
		LineVoltage: c.Power.LineVoltage,
		MaxPower:    c.Power.MaxPower,
	}
}

// Window is the aggregation interval.
func (c Config) Window() time.Duration {
	return time.Duration(c.Power.WindowMs) * time.Millisecond
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}
