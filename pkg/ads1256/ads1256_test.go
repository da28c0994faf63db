package ads1256_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/ads1256/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, simOpts []sim.Option, opts ...ads1256.Option) (*ads1256.Device, *sim.Device) {
	t.Helper()
	clk := sim.NewVirtualClock(time.Unix(0, 0))
	s := sim.New(append([]sim.Option{sim.WithClock(clk)}, simOpts...)...)
	timing := ads1256.DefaultTiming()
	timing.PollLimit = 100
	d := ads1256.New(s, append([]ads1256.Option{ads1256.WithTiming(timing)}, opts...)...)
	t.Cleanup(func() { d.Close() })
	return d, s
}

func TestRegisterRoundTrip(t *testing.T) {
	d, _ := newDevice(t, []sim.Option{sim.WithEcho()})
	for reg := ads1256.RegStatus; reg <= ads1256.RegFSC2; reg++ {
		for _, v := range []byte{0x00, 0x5A, 0xA5, 0xFF} {
			require.Nil(t, d.WriteRegister(reg, v), reg.String())
			got, err := d.ReadRegister(reg)
			require.Nil(t, err, reg.String())
			assert.Equal(t, v, got, reg.String())
		}
	}
}

func TestRegisterFraming(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.WriteRegister(ads1256.RegIO, 0x42))
	_, err := d.ReadRegister(ads1256.RegDRate)
	require.Nil(t, err)
	assert.Equal(t, [][]byte{
		{0x54, 0x00, 0x42},
		{0x13, 0x00, 0x00},
	}, s.Frames())
	assert.False(t, s.Selected())
}

func TestWriteRegisters(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.WriteRegisters(ads1256.RegOFC0, 0x01, 0x02, 0x03))
	assert.Equal(t, [][]byte{{0x55, 0x02, 0x01, 0x02, 0x03}}, s.Frames())
	v, err := d.ReadRegisters(ads1256.RegOFC0, 3)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, v)
}

func TestInvalidRegister(t *testing.T) {
	d, s := newDevice(t, nil)
	patterns := []struct {
		name string
		reg  ads1256.Register
		n    int
	}{
		{"beyond map", 0x0B, 1},
		{"zero length", ads1256.RegMux, 0},
		{"overrun", ads1256.RegFSC1, 3},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			_, err := d.ReadRegisters(p.reg, p.n)
			assert.True(t, errors.Is(err, ads1256.ErrInvalidRegister))
			err = d.WriteRegisters(p.reg, make([]byte, p.n)...)
			assert.True(t, errors.Is(err, ads1256.ErrInvalidRegister))
		})
	}
	assert.Empty(t, s.Frames())
}

func TestSendCommand(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.SendCommand(ads1256.CmdSync))
	require.Nil(t, d.Standby())
	require.Nil(t, d.Wakeup())
	assert.Equal(t, [][]byte{{0xFC}, {0xFD}, {0x00}}, s.Frames())
}

func TestSetChannel(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.SetChannel(ads1256.AIN2))
	assert.Equal(t, [][]byte{
		{0x51, 0x00, 0x28},
		{0xFC},
		{0x00},
	}, s.Frames())
	assert.Equal(t, byte(0x28), s.Register(ads1256.RegMux))

	err := d.SetChannel(9)
	assert.Equal(t, ads1256.ErrInvalidChannel, err)
}

func TestConfigure(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.Configure(ads1256.Gain4, ads1256.Rate1000))
	assert.Equal(t, [][]byte{{0x50, 0x03, 0x04, 0x08, 0x02, 0xA1}}, s.Frames())

	acal, err := d.AutoCalibrationEnabled()
	require.Nil(t, err)
	assert.True(t, acal)
	buf, err := d.BufferEnabled()
	require.Nil(t, err)
	assert.False(t, buf)
	rate, err := d.DataRate()
	require.Nil(t, err)
	assert.Equal(t, ads1256.Rate1000, rate)
	assert.Equal(t, 1000.0, rate.SPS())

	assert.Equal(t, ads1256.ErrInvalidGain, d.Configure(0x07, ads1256.Rate1000))
	assert.Equal(t, ads1256.ErrInvalidDataRate, d.Configure(ads1256.Gain1, 0x11))
}

func TestID(t *testing.T) {
	d, _ := newDevice(t, nil)
	id, err := d.ID()
	require.Nil(t, err)
	assert.Equal(t, byte(ads1256.ChipID), id)
}

func TestReset(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.Configure(ads1256.Gain64, ads1256.Rate10))
	require.Nil(t, d.Reset())
	assert.Equal(t, 1, s.Resets())
	regs, err := d.DumpRegisters()
	require.Nil(t, err)
	assert.Equal(t, byte(0x30), regs[ads1256.RegStatus])
	assert.Equal(t, byte(0x01), regs[ads1256.RegMux])
	assert.Equal(t, byte(0x20), regs[ads1256.RegADCON])
	assert.Equal(t, byte(0xF0), regs[ads1256.RegDRate])
}

func TestSignExtend24(t *testing.T) {
	patterns := []struct {
		code uint32
		want int32
	}{
		{0x000000, 0},
		{0x000001, 1},
		{0x7FFFFF, ads1256.MaxCode},
		{0x800000, ads1256.MinCode},
		{0xFFFFFF, -1},
		{0xC00000, -0x400000},
		{0xFF7FFFFF, ads1256.MaxCode},
	}
	for _, p := range patterns {
		assert.Equal(t, p.want, ads1256.SignExtend24(p.code), "0x%06x", p.code)
	}
	for code := uint32(0x800000); code <= 0xFFFFFF; code += 0x10101 {
		assert.Equal(t, -int32(0x1000000-code), ads1256.SignExtend24(code))
	}
}

func TestReadData(t *testing.T) {
	d, s := newDevice(t, []sim.Option{sim.WithSource(sim.Constant(0xFFFFFE))})
	v, err := d.ReadData()
	require.Nil(t, err)
	assert.Equal(t, int32(-2), v)
	assert.Equal(t, [][]byte{{0x01, 0x00, 0x00, 0x00}}, s.Frames())
}

func TestReadyTimeoutPermissive(t *testing.T) {
	d, s := newDevice(t, []sim.Option{sim.WithSource(sim.Constant(0x123456))})
	s.SetBusy(-1)
	v, err := d.ReadData()
	require.Nil(t, err)
	assert.Equal(t, int32(0x123456), v)
	assert.Equal(t, uint64(1), d.ReadyTimeouts())
	assert.Len(t, s.Frames(), 1)
}

func TestReadyTimeoutStrict(t *testing.T) {
	d, s := newDevice(t, nil, ads1256.WithStrictReady(true))
	s.SetBusy(-1)
	_, err := d.ReadData()
	assert.Equal(t, ads1256.ErrNotReady, err)
	_, err = d.ReadRegister(ads1256.RegStatus)
	assert.Equal(t, ads1256.ErrNotReady, err)
	assert.Equal(t, uint64(2), d.ReadyTimeouts())
	assert.Empty(t, s.Frames())
}

func TestReadyWithinBound(t *testing.T) {
	d, s := newDevice(t, nil, ads1256.WithStrictReady(true))
	s.SetBusy(99)
	require.Nil(t, d.WaitReady())
	assert.Equal(t, uint64(0), d.ReadyTimeouts())
	s.SetBusy(100)
	assert.Equal(t, ads1256.ErrNotReady, d.WaitReady())
}

func TestContinuous(t *testing.T) {
	codes := []uint32{0x000010, 0x800000}
	i := 0
	src := func(ads1256.Channel, time.Time) uint32 {
		c := codes[i%len(codes)]
		i++
		return c
	}
	d, s := newDevice(t, []sim.Option{sim.WithSource(src)})
	require.Nil(t, d.StartContinuous())
	assert.True(t, s.Continuous())
	v, err := d.ReadContinuous()
	require.Nil(t, err)
	assert.Equal(t, int32(0x10), v)
	v, err = d.ReadContinuous()
	require.Nil(t, err)
	assert.Equal(t, int32(ads1256.MinCode), v)
	require.Nil(t, d.StopContinuous())
	assert.False(t, s.Continuous())
	assert.Equal(t, [][]byte{{0x03}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00}, {0x0F}}, s.Frames())
}

func TestSelfCalibrate(t *testing.T) {
	d, s := newDevice(t, nil)
	require.Nil(t, d.SelfCalibrate())
	assert.Equal(t, [][]byte{{0xF0}}, s.Frames())
}

type failingTransport struct {
	*sim.Device
}

var errBus = errors.New("bus fault")

func (f failingTransport) TransferByte(b byte) (byte, error) {
	return 0, errBus
}

func TestChipSelectReleasedOnError(t *testing.T) {
	s := sim.New(sim.WithClock(sim.NewVirtualClock(time.Unix(0, 0))))
	d := ads1256.New(failingTransport{s})
	err := d.WriteRegister(ads1256.RegMux, 0x08)
	assert.True(t, errors.Is(err, errBus))
	assert.False(t, s.Selected())
	_, err = d.ReadData()
	assert.True(t, errors.Is(err, errBus))
	assert.False(t, s.Selected())
}

func TestClose(t *testing.T) {
	s := sim.New()
	d := ads1256.New(s)
	require.Nil(t, d.Close())
	assert.True(t, s.Closed())
	assert.Equal(t, ads1256.ErrClosed, d.Close())
	_, err := d.ReadData()
	assert.Equal(t, ads1256.ErrClosed, err)
	assert.Equal(t, ads1256.ErrClosed, d.SetChannel(ads1256.AIN0))
	assert.Equal(t, ads1256.ErrClosed, d.Reset())
}

// distinct values so each delay is identifiable in the event stream
var busTiming = ads1256.Timing{
	PollLimit:        10,
	ReadySettle:      3 * time.Microsecond,
	InterByte:        1 * time.Microsecond,
	RegisterSettle:   7 * time.Microsecond,
	DataSettle:       11 * time.Microsecond,
	ConfigSettle:     13 * time.Microsecond,
	ContinuousSettle: 17 * time.Microsecond,
	ResetPulse:       19 * time.Microsecond,
}

func newTimedDevice(t *testing.T, simOpts ...sim.Option) (*ads1256.Device, *sim.Device) {
	t.Helper()
	clk := sim.NewVirtualClock(time.Unix(0, 0))
	s := sim.New(append([]sim.Option{sim.WithClock(clk)}, simOpts...)...)
	d := ads1256.New(s, ads1256.WithTiming(busTiming))
	t.Cleanup(func() { d.Close() })
	return d, s
}

// send is an inter-byte delay followed by the transfer.
func send(b byte) []sim.Event {
	return []sim.Event{sim.Wait(busTiming.InterByte), sim.Transfer(b)}
}

func events(parts ...interface{}) []sim.Event {
	var out []sim.Event
	for _, p := range parts {
		switch v := p.(type) {
		case sim.Event:
			out = append(out, v)
		case []sim.Event:
			out = append(out, v...)
		}
	}
	return out
}

func TestReadRegisterTiming(t *testing.T) {
	d, s := newTimedDevice(t)
	_, err := d.ReadRegister(ads1256.RegDRate)
	require.Nil(t, err)
	assert.Equal(t, events(
		sim.Wait(busTiming.ReadySettle),
		sim.Poll(true),
		sim.Select(),
		send(0x13),
		send(0x00),
		sim.Wait(busTiming.RegisterSettle),
		sim.Transfer(0x00),
		sim.Release(),
	), s.Events())
}

func TestReadySettlePrecedesFirstPoll(t *testing.T) {
	d, s := newTimedDevice(t)
	s.SetBusy(2)
	require.Nil(t, d.WaitReady())
	assert.Equal(t, []sim.Event{
		sim.Wait(busTiming.ReadySettle),
		sim.Poll(false),
		sim.Poll(false),
		sim.Poll(true),
	}, s.Events())
}

func TestConfigureTiming(t *testing.T) {
	d, s := newTimedDevice(t)
	require.Nil(t, d.Configure(ads1256.Gain4, ads1256.Rate1000))
	assert.Equal(t, events(
		sim.Wait(busTiming.ReadySettle),
		sim.Poll(true),
		sim.Select(),
		send(0x50),
		send(0x03),
		send(0x04),
		send(0x08),
		send(0x02),
		send(0xA1),
		sim.Release(),
		sim.Wait(busTiming.ConfigSettle),
	), s.Events())
}

func TestReadDataTiming(t *testing.T) {
	d, s := newTimedDevice(t, sim.WithSource(sim.Constant(0x000102)))
	v, err := d.ReadData()
	require.Nil(t, err)
	assert.Equal(t, int32(0x000102), v)
	assert.Equal(t, events(
		sim.Wait(busTiming.ReadySettle),
		sim.Poll(true),
		sim.Select(),
		send(byte(ads1256.CmdRData)),
		sim.Wait(busTiming.DataSettle),
		sim.Transfer(0x00),
		sim.Transfer(0x00),
		sim.Transfer(0x00),
		sim.Release(),
	), s.Events())
}

func TestSetChannelTiming(t *testing.T) {
	d, s := newTimedDevice(t)
	require.Nil(t, d.SetChannel(ads1256.AIN5))
	assert.Equal(t, events(
		sim.Select(), send(0x51), send(0x00), send(0x58), sim.Release(),
		sim.Select(), send(byte(ads1256.CmdSync)), sim.Release(),
		sim.Select(), send(byte(ads1256.CmdWakeup)), sim.Release(),
	), s.Events())
}

func TestResetTiming(t *testing.T) {
	d, s := newTimedDevice(t)
	require.Nil(t, d.Reset())
	assert.Equal(t, []sim.Event{
		sim.Wait(busTiming.ResetPulse),
		sim.Wait(busTiming.ResetPulse),
	}, s.Events())
	assert.Equal(t, 1, s.Resets())
}
