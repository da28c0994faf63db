// Command ads1256-power samples a current transformer through an ADS1256
// and publishes one power reading per aggregation window.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/ads1256/sim"
	"github.com/Zatrac/ADS1256-driver/pkg/config"
	"github.com/Zatrac/ADS1256-driver/pkg/logger"
	"github.com/Zatrac/ADS1256-driver/pkg/output"
	"github.com/Zatrac/ADS1256-driver/pkg/output/console"
	"github.com/Zatrac/ADS1256-driver/pkg/output/file"
	mqttout "github.com/Zatrac/ADS1256-driver/pkg/output/mqtt"
	"github.com/Zatrac/ADS1256-driver/pkg/power"
	"github.com/Zatrac/ADS1256-driver/pkg/transport"
)

var rootCmd = &cobra.Command{
	Use:          "ads1256-power",
	Short:        "ads1256-power measures mains power with an ADS1256",
	Long:         "ads1256-power samples a current transformer through an ADS1256 and publishes RMS current, power and energy.",
	RunE:         run,
	SilenceUsage: true,
}

var flags *config.Flags

func init() {
	flags = config.BindFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the logging switches.
func loadConfig() (config.Config, error) {
	cfg, err := flags.Load()
	if err != nil {
		return cfg, err
	}
	logger.Quiet = cfg.Quiet
	logger.Verbose = cfg.Verbose
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			logger.Error("close device: %v", cerr)
		}
	}()

	if err := startDevice(ctx, dev, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	out, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Error("close outputs: %v", cerr)
		}
	}()

	channels, signalCh, err := cfg.SamplerChannels()
	if err != nil {
		return err
	}
	sampler, err := power.NewSampler(dev, out, power.Config{
		Channels: channels,
		Signal:   signalCh,
		Window:   cfg.Window(),
		Params:   cfg.PowerParams(),
	})
	if err != nil {
		return err
	}

	logger.Info("sampling %s every %s", signalCh, cfg.Window())
	err = sampler.Run(ctx)
	logger.Info("stopped, energy=%.4fkWh drdy timeouts=%d", sampler.Energy(), dev.ReadyTimeouts())
	return err
}

// openTransport opens the bus the configuration selects.
func openTransport(cfg config.Config) (transport.Transport, error) {
	if cfg.SensorType == config.SensorSimulation {
		signalCh, err := ads1256.ParseChannel(cfg.SignalChannel)
		if err != nil {
			return nil, err
		}
		rate, err := ads1256.ParseDataRate(cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		logger.Info("using simulated ADS1256 (%.0fHz, %.3fV)", cfg.Simulation.Frequency, cfg.Simulation.Amplitude)
		return sim.New(
			sim.WithSource(sim.Sine(signalCh, cfg.Simulation.Frequency, cfg.Simulation.Amplitude)),
			sim.WithConversionTime(time.Duration(float64(time.Second)/rate.SPS())),
			sim.WithoutRecording(),
		), nil
	}

	switch cfg.Transport {
	case config.TransportSPIDev:
		p, err := transport.NewPeriph(transport.PeriphConfig{
			Port:    cfg.SPI.Port,
			SpeedHz: cfg.SPI.SpeedHz,
			CS:      cfg.SPI.CSPin,
			DRDY:    cfg.SPI.DRDYPin,
			RST:     cfg.SPI.RSTPin,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.TransportGPIOD:
		b, err := transport.NewBitbang(transport.BitbangConfig{
			Chip: cfg.GPIO.Chip,
			Tclk: time.Duration(cfg.GPIO.TclkNs) * time.Nanosecond,
			SCLK: cfg.GPIO.SCLK,
			MOSI: cfg.GPIO.MOSI,
			MISO: cfg.GPIO.MISO,
			CS:   cfg.GPIO.CS,
			DRDY: cfg.GPIO.DRDY,
			RST:  cfg.GPIO.RST,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func openDevice(cfg config.Config) (*ads1256.Device, error) {
	t, err := openTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return ads1256.New(t,
		ads1256.WithTiming(cfg.DriverTiming()),
		ads1256.WithStrictReady(cfg.Timing.StrictReady),
	), nil
}

// startDevice resets the chip, waits for it to identify itself and applies
// the gain, rate and signal channel.
func startDevice(ctx context.Context, dev *ads1256.Device, cfg config.Config) error {
	gain, err := ads1256.ParseGain(cfg.Gain)
	if err != nil {
		return err
	}
	rate, err := ads1256.ParseDataRate(cfg.SampleRate)
	if err != nil {
		return err
	}
	signalCh, err := ads1256.ParseChannel(cfg.SignalChannel)
	if err != nil {
		return err
	}

	if err := dev.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := waitForChip(ctx, dev, cfg.IDRetry()); err != nil {
		return err
	}
	if err := dev.Configure(gain, rate); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := dev.SetChannel(signalCh); err != nil {
		return fmt.Errorf("set channel: %w", err)
	}
	logBanner(dev, gain)
	return nil
}

// waitForChip blocks until the ID register reads ChipID. The chip being
// absent is not fatal; only cancellation ends the wait.
func waitForChip(ctx context.Context, dev *ads1256.Device, retry time.Duration) error {
	for {
		id, err := dev.ID()
		switch {
		case err != nil:
			logger.Error("read id: %v", err)
		case id == ads1256.ChipID:
			logger.Info("ADS1256 detected (id=%d)", id)
			return nil
		default:
			logger.Error("unexpected chip id %d, retrying", id)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func logBanner(dev *ads1256.Device, gain ads1256.Gain) {
	buf, err := dev.BufferEnabled()
	if err != nil {
		logger.Error("read status: %v", err)
		return
	}
	acal, err := dev.AutoCalibrationEnabled()
	if err != nil {
		logger.Error("read status: %v", err)
		return
	}
	rate, err := dev.DataRate()
	if err != nil {
		logger.Error("read drate: %v", err)
		return
	}
	logger.Info("buffer=%t acal=%t gain=x%d rate=%.1fSPS", buf, acal, 1<<gain, rate.SPS())
}

// initOutputs builds the configured outputs. On error any output already
// opened is closed.
func initOutputs(cfg config.Config) (output.Multi, error) {
	var outs output.Multi
	for _, o := range cfg.Outputs {
		var (
			out output.Output
			err error
		)
		switch strings.ToLower(o.Type) {
		case config.OutputConsole:
			out = console.NewConsole()
		case config.OutputFile:
			fc := config.FileConfig{}
			if o.File != nil {
				fc = *o.File
			}
			out, err = file.NewMetricLogger(file.Config{
				Dir:         fc.Dir,
				LiveFile:    fc.LiveFile,
				HistoryFile: fc.HistoryFile,
				MetricsFile: fc.MetricsFile,
				LiveSamples: fc.LiveSamples,
			})
		case config.OutputMQTT:
			mc := config.MQTTConfig{}
			if o.MQTT != nil {
				mc = *o.MQTT
			}
			out, err = mqttout.NewMQTT(mc)
		default:
			err = fmt.Errorf("unknown output type %q", o.Type)
		}
		if err != nil {
			if cerr := outs.Close(); cerr != nil {
				logger.Error("close outputs: %v", cerr)
			}
			return nil, err
		}
		logger.Debug("output %s ready", o.Type)
		outs = append(outs, out)
	}
	return outs, nil
}
