package power

import "math"

// Window accumulates squared normalized voltages over one sampling interval.
// The zero value is an empty window.
type Window struct {
	count      int
	sumSquares float64
}

// Add accumulates one normalized voltage sample.
func (w *Window) Add(v float64) {
	w.count++
	w.sumSquares += v * v
}

// Len returns the number of accumulated samples.
func (w *Window) Len() int {
	return w.count
}

// MeanSquare returns the mean of the squared samples. ok is false for an
// empty window.
func (w *Window) MeanSquare() (ms float64, ok bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.sumSquares / float64(w.count), true
}

// RMS returns the root mean square of the samples. ok is false for an empty
// window.
func (w *Window) RMS() (rms float64, ok bool) {
	ms, ok := w.MeanSquare()
	if !ok {
		return 0, false
	}
	return math.Sqrt(ms), true
}

// Reset empties the window.
func (w *Window) Reset() {
	*w = Window{}
}
