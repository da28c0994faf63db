// Package power turns a stream of raw ADC conversions from a current
// transformer into RMS power and accumulated energy.
package power

import (
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
)

// Params describes the analog front end and the plausibility ceiling.
type Params struct {
	// FullScale is the voltage represented by MaxCode.
	FullScale float64
	// Midpoint is the bias voltage the transformer signal is centred on.
	Midpoint float64
	// BurdenOhms is the burden resistor across the transformer secondary.
	BurdenOhms float64
	// TurnsRatio is the transformer primary to secondary turns ratio.
	TurnsRatio float64
	// LineVoltage is the nominal mains voltage.
	LineVoltage float64
	// MaxPower is the spike filter ceiling in watts. Readings at or above it
	// are not published.
	MaxPower float64
}

// DefaultParams returns the front end of a 2000:1 transformer on a 50 ohm
// burden, biased at 2.5V, on 240V mains.
func DefaultParams() Params {
	return Params{
		FullScale:   5.0,
		Midpoint:    2.5,
		BurdenOhms:  50,
		TurnsRatio:  2000,
		LineVoltage: 240,
		MaxPower:    5000,
	}
}

// Normalize converts a sign extended conversion code to a voltage centred
// on the midpoint.
func (p Params) Normalize(code int32) float64 {
	return float64(code)*p.FullScale/ads1256.MaxCode - p.Midpoint
}

// SecondaryCurrent returns the burden current for an RMS voltage.
func (p Params) SecondaryCurrent(vrms float64) float64 {
	return vrms / p.BurdenOhms
}

// PrimaryCurrent returns the line current for a burden current.
func (p Params) PrimaryCurrent(isec float64) float64 {
	return isec * p.TurnsRatio
}

// Power returns instantaneous watts for an RMS voltage across the burden.
func (p Params) Power(vrms float64) float64 {
	return p.LineVoltage * p.PrimaryCurrent(p.SecondaryCurrent(vrms))
}

// Plausible reports whether watts is below the spike filter ceiling.
func (p Params) Plausible(watts float64) bool {
	return watts < p.MaxPower
}

// Energy returns the kilowatt hours drawn at watts for d.
func Energy(watts float64, d time.Duration) float64 {
	return watts / 1000 * d.Hours()
}
