package transport

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphConfig names the SPI port and the GPIO pins used by a Periph
// transport. Pin names are anything gpioreg.ByName accepts, e.g. "GPIO22".
type PeriphConfig struct {
	Port    string
	SpeedHz int64
	CS      string
	DRDY    string
	RST     string
}

// Periph drives the device through a Linux spidev port and GPIO pins via
// periph.io. Chip select is a plain GPIO so it can be held across the
// multi-byte transactions the protocol needs.
type Periph struct {
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinIO
	drdy gpio.PinIO
	rst  gpio.PinIO
}

// NewPeriph initialises the host drivers, opens the SPI port in mode 1 and
// claims the CS, DRDY and RST pins.
func NewPeriph(cfg PeriphConfig) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	cs, err := pinByName(cfg.CS)
	if err != nil {
		return nil, fmt.Errorf("cs pin: %w", err)
	}
	drdy, err := pinByName(cfg.DRDY)
	if err != nil {
		return nil, fmt.Errorf("drdy pin: %w", err)
	}
	rst, err := pinByName(cfg.RST)
	if err != nil {
		return nil, fmt.Errorf("rst pin: %w", err)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("cs out: %w", err)
	}
	if err := rst.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("rst out: %w", err)
	}
	if err := drdy.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("drdy in: %w", err)
	}
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("open spi: %w", err)
	}
	conn, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode1, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	return &Periph{port: port, conn: conn, cs: cs, drdy: drdy, rst: rst}, nil
}

func pinByName(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.New("no pin name")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown pin %q", name)
	}
	return p, nil
}

func (p *Periph) SelectChip(active bool) error {
	if active {
		return p.cs.Out(gpio.Low)
	}
	return p.cs.Out(gpio.High)
}

func (p *Periph) TransferByte(b byte) (byte, error) {
	var r [1]byte
	if err := p.conn.Tx([]byte{b}, r[:]); err != nil {
		return 0, fmt.Errorf("spi tx: %w", err)
	}
	return r[0], nil
}

func (p *Periph) DataReady() (bool, error) {
	return p.drdy.Read() == gpio.Low, nil
}

func (p *Periph) SetReset(high bool) error {
	return p.rst.Out(gpio.Level(high))
}

func (p *Periph) Delay(d time.Duration) { Delay(d) }

// Close deasserts chip select and releases the SPI port.
func (p *Periph) Close() error {
	var err error
	if p.cs != nil {
		err = multierr.Append(err, p.cs.Out(gpio.High))
	}
	if p.port != nil {
		err = multierr.Append(err, p.port.Close())
		p.port = nil
	}
	return err
}
