// Package ads1256 drives a Texas Instruments ADS1256 24-bit delta-sigma ADC
// over a dedicated serial bus.
//
// Every transaction is framed by chip select and blocks for its full
// duration including settle delays. Data bearing transactions are gated by
// polling the DRDY line; see WaitReady.
package ads1256

import (
	"errors"
	"sync"
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/transport"
)

var (
	// ErrClosed indicates the device is closed.
	ErrClosed = errors.New("closed")
	// ErrNotReady indicates DRDY did not go low within the poll bound while
	// strict ready checking is enabled.
	ErrNotReady = errors.New("data ready timeout")
	// ErrInvalidRegister indicates an address or length outside the register map.
	ErrInvalidRegister = errors.New("invalid register")
	ErrInvalidGain     = errors.New("invalid gain")
	ErrInvalidDataRate = errors.New("invalid data rate")
	ErrInvalidChannel  = errors.New("invalid channel")
)

// Timing holds the bus timing parameters.
type Timing struct {
	// PollLimit bounds the number of DRDY samples taken by WaitReady.
	PollLimit int
	// ReadySettle precedes the first DRDY sample.
	ReadySettle time.Duration
	// InterByte precedes every transmitted byte.
	InterByte time.Duration
	// RegisterSettle separates the RREG command phase from the data phase.
	RegisterSettle time.Duration
	// DataSettle separates RDATA from the data phase.
	DataSettle time.Duration
	// ConfigSettle follows the configuration burst write.
	ConfigSettle time.Duration
	// ContinuousSettle follows RDATAC.
	ContinuousSettle time.Duration
	// ResetPulse is held low and then high on the RST line.
	ResetPulse time.Duration
}

// DefaultTiming returns timing that works for every data rate at a 7.68MHz
// master clock.
func DefaultTiming() Timing {
	return Timing{
		PollLimit:        5000000,
		ReadySettle:      5 * time.Microsecond,
		InterByte:        2 * time.Microsecond,
		RegisterSettle:   30 * time.Microsecond,
		DataSettle:       1000 * time.Microsecond,
		ConfigSettle:     500 * time.Microsecond,
		ContinuousSettle: 5 * time.Microsecond,
		ResetPulse:       5 * time.Millisecond,
	}
}

// Device is an ADS1256 attached to a transport. Its methods serialise access
// to the bus so a Device may be shared between goroutines.
type Device struct {
	mu       sync.Mutex
	t        transport.Transport
	timing   Timing
	strict   bool
	timeouts uint64
}

// Option specifies a construction option for the Device.
type Option func(*Device)

// WithTiming replaces the default bus timing.
func WithTiming(t Timing) Option {
	return func(d *Device) {
		d.timing = t
	}
}

// WithStrictReady makes an exhausted DRDY poll fail the transaction with
// ErrNotReady instead of proceeding.
func WithStrictReady(strict bool) Option {
	return func(d *Device) {
		d.strict = strict
	}
}

// New creates a Device on t. The device takes ownership of t.
func New(t transport.Transport, options ...Option) *Device {
	d := &Device{t: t, timing: DefaultTiming()}
	for _, option := range options {
		option(d)
	}
	if d.timing.PollLimit < 1 {
		d.timing.PollLimit = 1
	}
	return d
}

// Close releases the transport. Chip select is deasserted by the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	err := d.t.Close()
	d.t = nil
	return err
}

// ReadyTimeouts returns the number of DRDY polls that exhausted their bound.
func (d *Device) ReadyTimeouts() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeouts
}

// Reset pulses the RST line low, returning the registers to their power-up
// values.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.t.SetReset(false); err != nil {
		return err
	}
	d.t.Delay(d.timing.ResetPulse)
	if err := d.t.SetReset(true); err != nil {
		return err
	}
	d.t.Delay(d.timing.ResetPulse)
	return nil
}
