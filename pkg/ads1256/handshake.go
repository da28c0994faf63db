package ads1256

// WaitReady polls DRDY until the device signals a completed conversion.
//
// The poll is a bounded spin preceded by a short settle delay. When the
// bound is exhausted the call returns nil and the caller proceeds with a
// possibly stale conversion, unless the device was created with
// WithStrictReady, in which case ErrNotReady is returned.
func (d *Device) WaitReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		return ErrClosed
	}
	return d.waitReady()
}

func (d *Device) waitReady() error {
	ok, err := d.pollReady()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	d.timeouts++
	if d.strict {
		return ErrNotReady
	}
	return nil
}

func (d *Device) pollReady() (bool, error) {
	d.t.Delay(d.timing.ReadySettle)
	for i := 0; i < d.timing.PollLimit; i++ {
		ready, err := d.t.DataReady()
		if err != nil {
			return false, err
		}
		if ready {
			return true, nil
		}
	}
	return false, nil
}
