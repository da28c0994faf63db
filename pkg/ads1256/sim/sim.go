// Package sim simulates an ADS1256 behind the transport.Transport interface.
//
// The model decodes the command and register protocol byte by byte within
// each chip select frame, keeps a register file, and produces conversion
// results from a Source for whichever input MUX selects.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/transport"
)

// FullScale is the span in volts of a conversion code from 0 to MaxCode.
const FullScale = 5.0

// Source returns the raw 24-bit conversion result for ch at time now.
type Source func(ch ads1256.Channel, now time.Time) uint32

var defaults = [ads1256.NumRegisters]byte{
	0x30, 0x01, 0x20, 0xF0, 0xE0,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x40,
}

// EventKind identifies a bus event recorded by the simulator.
type EventKind int

const (
	EventSelect EventKind = iota
	EventRelease
	EventTransfer
	EventPoll
	EventDelay
)

// Event is one host action on the bus. Byte is set for transfers, Ready for
// DRDY polls and Delay for delays.
type Event struct {
	Kind  EventKind
	Byte  byte
	Ready bool
	Delay time.Duration
}

// Select, Release, Transfer, Poll and Wait build events for comparisons.
func Select() Event { return Event{Kind: EventSelect} }
func Release() Event { return Event{Kind: EventRelease} }
func Transfer(b byte) Event { return Event{Kind: EventTransfer, Byte: b} }
func Poll(ready bool) Event { return Event{Kind: EventPoll, Ready: ready} }
func Wait(d time.Duration) Event { return Event{Kind: EventDelay, Delay: d} }

type phase int

const (
	phaseCommand phase = iota
	phaseReadCount
	phaseReadData
	phaseWriteCount
	phaseWriteData
	phaseData
)

// Device is a simulated ADS1256.
type Device struct {
	mu         sync.Mutex
	regs       [ads1256.NumRegisters]byte
	clock      *VirtualClock
	source     Source
	convTime   time.Duration
	echo       bool
	noRecord   bool
	busy       int
	selected   bool
	continuous bool
	closed     bool

	phase  phase
	reg    int
	count  int
	out    []byte
	frames [][]byte
	events []Event
	resets int
}

// Option specifies a construction option for the simulated device.
type Option func(*Device)

// WithClock makes the device run on c. Delays and conversions advance c
// rather than sleeping.
func WithClock(c *VirtualClock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// WithSource sets the conversion source. The default reads the mid-scale
// code on every input.
func WithSource(s Source) Option {
	return func(d *Device) {
		d.source = s
	}
}

// WithConversionTime sets the time each RDATA conversion takes.
func WithConversionTime(t time.Duration) Option {
	return func(d *Device) {
		d.convTime = t
	}
}

// WithEcho makes every register bit writable so reads return exactly what
// was written.
func WithEcho() Option {
	return func(d *Device) {
		d.echo = true
	}
}

// WithoutRecording stops the device keeping frames and events, for long
// running use outside tests.
func WithoutRecording() Option {
	return func(d *Device) {
		d.noRecord = true
	}
}

// New creates a simulated device holding power-up register values.
func New(options ...Option) *Device {
	d := &Device{regs: defaults}
	for _, option := range options {
		option(d)
	}
	if d.source == nil {
		d.source = Constant(Code(FullScale / 2))
	}
	return d
}

// Code converts a voltage to the conversion code the simulator reports.
func Code(volts float64) uint32 {
	c := math.Round(volts * ads1256.MaxCode / FullScale)
	return uint32(int32(c)) & 0xFFFFFF
}

// Constant returns a source reading code on every input.
func Constant(code uint32) Source {
	return func(ads1256.Channel, time.Time) uint32 {
		return code
	}
}

// Sine returns a source producing a sine of the given frequency and
// amplitude, centred on mid-scale, on the signal input. Other inputs read
// mid-scale.
func Sine(signal ads1256.Channel, hz, amplitude float64) Source {
	mid := FullScale / 2
	return func(ch ads1256.Channel, now time.Time) uint32 {
		if ch != signal {
			return Code(mid)
		}
		t := float64(now.UnixNano()) / float64(time.Second)
		return Code(mid + amplitude*math.Sin(2*math.Pi*hz*t))
	}
}

// SetBusy holds DRDY high for the next n polls. A negative n holds it high
// forever.
func (d *Device) SetBusy(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = n
}

// Register returns the current value of reg.
func (d *Device) Register(reg ads1256.Register) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// Frames returns the bytes written in each chip select frame since the last
// ClearFrames.
func (d *Device) Frames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.frames))
	for i, f := range d.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Events returns the bus events since the last ClearFrames.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// ClearFrames discards the recorded frames and events.
func (d *Device) ClearFrames() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = nil
	d.events = nil
}

func (d *Device) record(e Event) {
	if !d.noRecord {
		d.events = append(d.events, e)
	}
}

// Resets returns the number of hardware resets seen on the RST line.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Selected reports whether chip select is asserted.
func (d *Device) Selected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Closed reports whether the transport has been closed.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Continuous reports whether the device is in read data continuous mode.
func (d *Device) Continuous() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continuous
}

func (d *Device) SelectChip(active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if active {
		d.record(Select())
	} else {
		d.record(Release())
	}
	if active && !d.selected && !d.noRecord {
		d.frames = append(d.frames, nil)
	}
	d.selected = active
	d.phase = phaseCommand
	d.out = nil
	return nil
}

func (d *Device) TransferByte(b byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Transfer(b))
	if !d.selected {
		return 0xFF, nil
	}
	if !d.noRecord {
		n := len(d.frames) - 1
		d.frames[n] = append(d.frames[n], b)
	}
	switch d.phase {
	case phaseCommand:
		return d.command(b), nil
	case phaseReadCount:
		d.count = int(b&0x0F) + 1
		d.phase = phaseReadData
	case phaseReadData:
		var v byte
		if d.reg < ads1256.NumRegisters {
			v = d.regs[d.reg]
		}
		d.reg++
		d.count--
		if d.count == 0 {
			d.phase = phaseCommand
		}
		return v, nil
	case phaseWriteCount:
		d.count = int(b&0x0F) + 1
		d.phase = phaseWriteData
	case phaseWriteData:
		d.write(d.reg, b)
		d.reg++
		d.count--
		if d.count == 0 {
			d.phase = phaseCommand
		}
	case phaseData:
		return d.shift(), nil
	}
	return 0, nil
}

func (d *Device) command(b byte) byte {
	if d.continuous && b != byte(ads1256.CmdSDataC) && b != byte(ads1256.CmdReset) {
		if d.out == nil {
			d.out = d.convert()
		}
		return d.shift()
	}
	switch {
	case b&0xF0 == byte(ads1256.CmdRReg):
		d.reg = int(b & 0x0F)
		d.phase = phaseReadCount
		return 0
	case b&0xF0 == byte(ads1256.CmdWReg):
		d.reg = int(b & 0x0F)
		d.phase = phaseWriteCount
		return 0
	}
	switch ads1256.Command(b) {
	case ads1256.CmdRData:
		d.out = d.convert()
		d.phase = phaseData
	case ads1256.CmdRDataC:
		d.continuous = true
	case ads1256.CmdSDataC:
		d.continuous = false
	case ads1256.CmdReset:
		d.regs = defaults
		d.continuous = false
	}
	return 0
}

func (d *Device) shift() byte {
	if len(d.out) == 0 {
		return 0
	}
	v := d.out[0]
	d.out = d.out[1:]
	return v
}

func (d *Device) write(reg int, v byte) {
	if reg >= ads1256.NumRegisters {
		return
	}
	if !d.echo && reg == int(ads1256.RegStatus) {
		// ID and DRDY are read only.
		v = d.regs[reg]&0xF1 | v&0x0E
	}
	d.regs[reg] = v
}

func (d *Device) convert() []byte {
	ch := ads1256.Channel(d.regs[ads1256.RegMux] >> 4)
	code := d.source(ch, d.now()) & 0xFFFFFF
	d.sleep(d.convTime)
	return []byte{byte(code >> 16), byte(code >> 8), byte(code)}
}

func (d *Device) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ready := d.busy == 0
	if d.busy > 0 {
		d.busy--
	}
	d.record(Poll(ready))
	return ready, nil
}

func (d *Device) SetReset(high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !high {
		d.regs = defaults
		d.continuous = false
		d.resets++
	}
	return nil
}

func (d *Device) Delay(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Wait(t))
	d.sleep(t)
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = false
	d.closed = true
	return nil
}

// Now returns the device's notion of the current time.
func (d *Device) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now()
}

func (d *Device) now() time.Time {
	if d.clock != nil {
		return d.clock.Now()
	}
	return time.Now()
}

func (d *Device) sleep(t time.Duration) {
	if d.clock != nil {
		d.clock.Advance(t)
		return
	}
	transport.Delay(t)
}

var _ transport.Transport = (*Device)(nil)
