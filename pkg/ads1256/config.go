package ads1256

// Status register value written by Configure: auto-calibration on, analog
// input buffer off.
const configStatus = StatusACal

// SetChannel selects ch against AINCOM. The MUX write only takes effect
// after SYNC, and the device stays paused until WAKEUP, so all three are
// always issued, in that order.
func (d *Device) SetChannel(ch Channel) error {
	if ch > AINCOM {
		return ErrInvalidChannel
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.writeRegisters(RegMux, []byte{MuxValue(ch)}); err != nil {
		return err
	}
	if err := d.sendCommand(CmdSync); err != nil {
		return err
	}
	return d.sendCommand(CmdWakeup)
}

// Configure programs gain and data rate. STATUS, MUX, ADCON and DRATE are
// written in a single burst so gain and rate never disagree, then the
// configuration is given time to settle. MUX is left at AIN0/AINCOM.
func (d *Device) Configure(gain Gain, rate DataRate) error {
	if gain > Gain64 {
		return ErrInvalidGain
	}
	if rate.SPS() == 0 {
		return ErrInvalidDataRate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	values := []byte{configStatus, MuxValue(AIN0), byte(gain), byte(rate)}
	if err := d.writeRegisters(RegStatus, values); err != nil {
		return err
	}
	d.t.Delay(d.timing.ConfigSettle)
	return nil
}

// ID returns the chip identifier from the top nibble of STATUS. A live link
// to an ADS1256 returns ChipID.
func (d *Device) ID() (byte, error) {
	v, err := d.ReadRegister(RegStatus)
	if err != nil {
		return 0, err
	}
	return v >> 4, nil
}

// BufferEnabled reports the STATUS BUFEN bit.
func (d *Device) BufferEnabled() (bool, error) {
	v, err := d.ReadRegister(RegStatus)
	if err != nil {
		return false, err
	}
	return v&StatusBufEn != 0, nil
}

// AutoCalibrationEnabled reports the STATUS ACAL bit.
func (d *Device) AutoCalibrationEnabled() (bool, error) {
	v, err := d.ReadRegister(RegStatus)
	if err != nil {
		return false, err
	}
	return v&StatusACal != 0, nil
}

// DataRate reads back the DRATE register.
func (d *Device) DataRate() (DataRate, error) {
	v, err := d.ReadRegister(RegDRate)
	return DataRate(v), err
}

// DumpRegisters reads the whole register map.
func (d *Device) DumpRegisters() ([NumRegisters]byte, error) {
	var out [NumRegisters]byte
	v, err := d.ReadRegisters(RegStatus, NumRegisters)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

// SelfCalibrate runs offset and gain self-calibration and waits for it to
// complete.
func (d *Device) SelfCalibrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	if err := d.sendCommand(CmdSelfCal); err != nil {
		return err
	}
	return d.waitReady()
}

// Standby puts the device in standby mode until Wakeup.
func (d *Device) Standby() error {
	return d.SendCommand(CmdStandby)
}

// Wakeup leaves standby mode or completes a SYNC.
func (d *Device) Wakeup() error {
	return d.SendCommand(CmdWakeup)
}
