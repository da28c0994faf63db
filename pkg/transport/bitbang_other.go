//go:build !linux

package transport

import (
	"errors"
	"time"
)

// BitbangConfig holds the GPIO character device line offsets used by a
// Bitbang transport.
type BitbangConfig struct {
	Chip string
	Tclk time.Duration
	SCLK int
	MOSI int
	MISO int
	CS   int
	DRDY int
	RST  int
}

// ErrUnsupported indicates the GPIO character device is not available on
// this platform.
var ErrUnsupported = errors.New("gpio character device requires linux")

// Bitbang is unavailable off Linux. Its bus methods report ErrUnsupported.
type Bitbang struct{}

// NewBitbang is only supported on Linux.
func NewBitbang(cfg BitbangConfig) (*Bitbang, error) {
	return nil, ErrUnsupported
}

func (b *Bitbang) SelectChip(active bool) error { return ErrUnsupported }
func (b *Bitbang) TransferByte(out byte) (byte, error) { return 0, ErrUnsupported }
func (b *Bitbang) DataReady() (bool, error) { return false, ErrUnsupported }
func (b *Bitbang) SetReset(high bool) error { return ErrUnsupported }
func (b *Bitbang) Delay(d time.Duration) { Delay(d) }
func (b *Bitbang) Close() error { return nil }
