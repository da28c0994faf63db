package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/logger"
)

func init() {
	rootCmd.AddCommand(registersCmd)
	rootCmd.AddCommand(calibrateCmd)
}

var registersCmd = &cobra.Command{
	Use:   "registers",
	Short: "Dump the register file",
	Long:  "Reset and configure the chip, then print all eleven registers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(dev *ads1256.Device) error {
			return dumpRegisters(cmd.OutOrStdout(), dev)
		})
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run a self calibration",
	Long:  "Reset and configure the chip, run SELFCAL and print the resulting offset and full-scale registers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(dev *ads1256.Device) error {
			if err := dev.SelfCalibrate(); err != nil {
				return fmt.Errorf("self calibrate: %w", err)
			}
			return dumpRegisters(cmd.OutOrStdout(), dev)
		})
	},
}

// withDevice opens and starts the configured device and runs fn on it.
func withDevice(fn func(*ads1256.Device) error) error {
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
	return fn(dev)
}

func dumpRegisters(w io.Writer, dev *ads1256.Device) error {
	regs, err := dev.DumpRegisters()
	if err != nil {
		return fmt.Errorf("read registers: %w", err)
	}
	for i, v := range regs {
		fmt.Fprintf(w, "%-6s 0x%02x\n", ads1256.Register(i), v)
	}
	return nil
}
