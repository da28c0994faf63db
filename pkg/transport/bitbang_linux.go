//go:build linux

package transport

import (
	"fmt"
	"time"

	"github.com/warthog618/gpiod"
	"go.uber.org/multierr"
)

// BitbangConfig holds the GPIO character device line offsets used by a
// Bitbang transport.
type BitbangConfig struct {
	Chip string
	// time between clock edges (i.e. half the cycle time)
	Tclk time.Duration
	SCLK int
	MOSI int
	MISO int
	CS   int
	DRDY int
	RST  int
}

// Bitbang clocks SPI mode 1 (CPOL=0, CPHA=1) over plain GPIO lines requested
// from the Linux GPIO character device. It is slower than spidev but needs
// no kernel SPI driver and works on any free lines.
type Bitbang struct {
	tclk time.Duration
	sclk *gpiod.Line
	mosi *gpiod.Line
	miso *gpiod.Line
	cs   *gpiod.Line
	drdy *gpiod.Line
	rst  *gpiod.Line
}

// NewBitbang requests all lines from the chip. On failure any lines already
// requested are released.
func NewBitbang(cfg BitbangConfig) (b *Bitbang, err error) {
	c, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("ads1256"))
	if err != nil {
		return nil, fmt.Errorf("open chip: %w", err)
	}
	defer c.Close()
	b = &Bitbang{tclk: cfg.Tclk}
	if b.tclk == 0 {
		// default to 1MHz full cycle.
		b.tclk = 500 * time.Nanosecond
	}
	defer func() {
		if err != nil {
			b.Close()
			b = nil
		}
	}()
	if b.cs, err = c.RequestLine(cfg.CS, gpiod.AsOutput(1)); err != nil {
		return b, fmt.Errorf("request cs: %w", err)
	}
	if b.rst, err = c.RequestLine(cfg.RST, gpiod.AsOutput(1)); err != nil {
		return b, fmt.Errorf("request rst: %w", err)
	}
	if b.sclk, err = c.RequestLine(cfg.SCLK, gpiod.AsOutput(0)); err != nil {
		return b, fmt.Errorf("request sclk: %w", err)
	}
	if b.mosi, err = c.RequestLine(cfg.MOSI, gpiod.AsOutput(0)); err != nil {
		return b, fmt.Errorf("request mosi: %w", err)
	}
	if b.miso, err = c.RequestLine(cfg.MISO, gpiod.AsInput); err != nil {
		return b, fmt.Errorf("request miso: %w", err)
	}
	if b.drdy, err = c.RequestLine(cfg.DRDY, gpiod.AsInput, gpiod.WithPullUp); err != nil {
		return b, fmt.Errorf("request drdy: %w", err)
	}
	return b, nil
}

func (b *Bitbang) SelectChip(active bool) error {
	if active {
		return b.cs.SetValue(0)
	}
	return b.cs.SetValue(1)
}

// TransferByte shifts b out MSB first, presenting each bit on the rising
// edge and sampling MISO on the falling edge.
func (b *Bitbang) TransferByte(out byte) (byte, error) {
	var in byte
	for i := 7; i >= 0; i-- {
		if err := b.sclk.SetValue(1); err != nil {
			return 0, err
		}
		if err := b.mosi.SetValue(int(out>>uint(i)) & 0x01); err != nil {
			return 0, err
		}
		Delay(b.tclk)
		if err := b.sclk.SetValue(0); err != nil {
			return 0, err
		}
		v, err := b.miso.Value()
		if err != nil {
			return 0, err
		}
		in <<= 1
		if v != 0 {
			in |= 0x01
		}
		Delay(b.tclk)
	}
	return in, nil
}

func (b *Bitbang) DataReady() (bool, error) {
	v, err := b.drdy.Value()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

func (b *Bitbang) SetReset(high bool) error {
	if high {
		return b.rst.SetValue(1)
	}
	return b.rst.SetValue(0)
}

func (b *Bitbang) Delay(d time.Duration) { Delay(d) }

// Close deasserts chip select and releases all requested lines.
func (b *Bitbang) Close() error {
	var err error
	if b.cs != nil {
		err = multierr.Append(err, b.cs.SetValue(1))
	}
	for _, l := range []*gpiod.Line{b.sclk, b.mosi, b.miso, b.cs, b.drdy, b.rst} {
		if l != nil {
			err = multierr.Append(err, l.Close())
		}
	}
	b.sclk, b.mosi, b.miso, b.cs, b.drdy, b.rst = nil, nil, nil, nil, nil, nil
	return err
}
