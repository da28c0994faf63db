package ads1256

import (
	"fmt"

	"go.uber.org/multierr"
)

// dummy is clocked out while reading. It is the WAKEUP opcode, which the
// device ignores in the data phase.
const dummy = byte(CmdWakeup)

// SendCommand issues a bare command in its own chip select frame.
func (d *Device) SendCommand(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	return d.sendCommand(cmd)
}

// WriteRegister writes a single register.
func (d *Device) WriteRegister(reg Register, v byte) error {
	return d.WriteRegisters(reg, v)
}

// WriteRegisters writes len(values) consecutive registers starting at reg in
// one chip select frame.
func (d *Device) WriteRegisters(reg Register, values ...byte) error {
	if err := checkRange(reg, len(values)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	return d.writeRegisters(reg, values)
}

// ReadRegister waits for DRDY and reads a single register.
func (d *Device) ReadRegister(reg Register) (byte, error) {
	v, err := d.ReadRegisters(reg, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// ReadRegisters waits for DRDY and reads n consecutive registers starting at
// reg in one chip select frame.
func (d *Device) ReadRegisters(reg Register, n int) ([]byte, error) {
	if err := checkRange(reg, n); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return nil, ErrClosed
	}
	return d.readRegisters(reg, n)
}

func checkRange(reg Register, n int) error {
	if !reg.Valid() || n < 1 || int(reg)+n > NumRegisters {
		return fmt.Errorf("%w: %s+%d", ErrInvalidRegister, reg, n)
	}
	return nil
}

// frame runs fn with chip select asserted. Chip select is released on every
// path out of fn.
func (d *Device) frame(fn func() error) (err error) {
	if err = d.t.SelectChip(true); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, d.t.SelectChip(false))
	}()
	return fn()
}

func (d *Device) send(b byte) error {
	d.t.Delay(d.timing.InterByte)
	_, err := d.t.TransferByte(b)
	return err
}

func (d *Device) recv() (byte, error) {
	return d.t.TransferByte(dummy)
}

func (d *Device) sendCommand(cmd Command) error {
	return d.frame(func() error {
		return d.send(byte(cmd))
	})
}

func (d *Device) writeRegisters(reg Register, values []byte) error {
	return d.frame(func() error {
		if err := d.send(byte(CmdWReg) | byte(reg)); err != nil {
			return err
		}
		if err := d.send(byte(len(values) - 1)); err != nil {
			return err
		}
		for _, v := range values {
			if err := d.send(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Device) readRegisters(reg Register, n int) ([]byte, error) {
	if err := d.waitReady(); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	err := d.frame(func() error {
		if err := d.send(byte(CmdRReg) | byte(reg)); err != nil {
			return err
		}
		if err := d.send(byte(n - 1)); err != nil {
			return err
		}
		d.t.Delay(d.timing.RegisterSettle)
		for i := range out {
			v, err := d.recv()
			if err != nil {
				return err
			}
			out[i] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
