package ads1256

const (
	// MaxCode is the largest positive conversion result.
	MaxCode = 0x7FFFFF
	// MinCode is the most negative conversion result.
	MinCode = -0x800000
)

// SignExtend24 interprets the low 24 bits of code as a two's complement
// value.
func SignExtend24(code uint32) int32 {
	code &= 0xFFFFFF
	if code&0x800000 != 0 {
		return int32(code) - 0x1000000
	}
	return int32(code)
}

// ReadData waits for DRDY and reads one conversion with RDATA.
func (d *Device) ReadData() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return 0, ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return 0, err
	}
	return d.readWord(true)
}

// StartContinuous enters read data continuous mode. Conversions are then
// read with ReadContinuous until StopContinuous.
func (d *Device) StartContinuous() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	if err := d.sendCommand(CmdRDataC); err != nil {
		return err
	}
	d.t.Delay(d.timing.ContinuousSettle)
	return nil
}

// ReadContinuous waits for DRDY and clocks out the next conversion while in
// read data continuous mode.
func (d *Device) ReadContinuous() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return 0, ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return 0, err
	}
	return d.readWord(false)
}

// StopContinuous leaves read data continuous mode.
func (d *Device) StopContinuous() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	return d.sendCommand(CmdSDataC)
}

func (d *Device) readWord(rdata bool) (int32, error) {
	var code uint32
	err := d.frame(func() error {
		if rdata {
			if err := d.send(byte(CmdRData)); err != nil {
				return err
			}
			d.t.Delay(d.timing.DataSettle)
		}
		// MSB first
		for i := 0; i < 3; i++ {
			b, err := d.recv()
			if err != nil {
				return err
			}
			code = code<<8 | uint32(b)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return SignExtend24(code), nil
}
