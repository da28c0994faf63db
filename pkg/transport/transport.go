// Package transport provides the byte-level serial bus primitives the ADS1256
// driver is built on: chip select, single byte full-duplex transfer, the
// data ready line, the reset line and short delays.
package transport

import "time"

// Transport is a dedicated synchronous serial bus to a single device.
//
// Implementations are not safe for concurrent use; callers serialise
// transactions.
type Transport interface {
	// SelectChip drives chip select. true asserts it (line low).
	SelectChip(active bool) error
	// TransferByte clocks out b and returns the byte clocked in.
	TransferByte(b byte) (byte, error)
	// DataReady samples the DRDY line and reports true when it is low.
	DataReady() (bool, error)
	// SetReset drives the RST line. false holds the device in reset.
	SetReset(high bool) error
	// Delay blocks for at least d.
	Delay(d time.Duration)
	// Close deasserts chip select and releases the bus.
	Close() error
}

// spinThreshold is the longest delay served by busy waiting. Anything longer
// goes to the scheduler.
const spinThreshold = 200 * time.Microsecond

// Delay blocks the caller for at least d. Microsecond delays spin on the
// monotonic clock since time.Sleep cannot honour them.
func Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > spinThreshold {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}
