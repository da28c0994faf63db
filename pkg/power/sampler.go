package power

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/ads1256"
	"github.com/Zatrac/ADS1256-driver/pkg/logger"
)

// Converter selects inputs and reads conversions. *ads1256.Device
// implements it.
type Converter interface {
	SetChannel(ch ads1256.Channel) error
	ReadData() (int32, error)
}

// Publisher receives every plausible reading.
type Publisher interface {
	Publish(Reading) error
}

// Clock supplies wall clock time to the sampler.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Reading is a snapshot of one completed window.
type Reading struct {
	Timestamp time.Time
	Samples   int
	Elapsed   time.Duration
	VRMS      float64
	// SecondaryCurrent is the burden current in amps.
	SecondaryCurrent float64
	// PrimaryCurrent is the line current in amps.
	PrimaryCurrent float64
	// Power is the instantaneous power in watts.
	Power float64
	// Energy is the energy accumulated since start in kilowatt hours.
	Energy float64
}

// State is the phase of the sampling loop.
type State int

const (
	Collecting State = iota
	Computing
	Publishing
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Computing:
		return "computing"
	case Publishing:
		return "publishing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Sampler.
type Config struct {
	// Channels are cycled through in order for the whole window.
	Channels []ads1256.Channel
	// Signal is the channel whose samples are aggregated. The others are
	// read only so the sinc filter never sees the signal back to back.
	Signal ads1256.Channel
	// Window is the aggregation interval.
	Window time.Duration
	Params Params
}

// Sampler runs the collect, compute, publish cycle.
//
// The accumulated energy is owned by the Sampler and mutated only by the
// goroutine running it.
type Sampler struct {
	adc   Converter
	pub   Publisher
	clock Clock
	cfg   Config

	state   State
	window  Window
	energy  float64
	skipped int
}

// Option specifies a construction option for the Sampler.
type Option func(*Sampler)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Sampler) {
		s.clock = c
	}
}

// NewSampler creates a Sampler reading from adc and publishing to pub.
func NewSampler(adc Converter, pub Publisher, cfg Config, options ...Option) (*Sampler, error) {
	if cfg.Window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	found := false
	for _, ch := range cfg.Channels {
		if ch == cfg.Signal {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("signal channel %s not in channel cycle", cfg.Signal)
	}
	s := &Sampler{adc: adc, pub: pub, cfg: cfg, clock: systemClock{}}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// State returns the current phase.
func (s *Sampler) State() State {
	return s.state
}

// Energy returns the accumulated energy in kilowatt hours.
func (s *Sampler) Energy() float64 {
	return s.energy
}

// Run cycles until ctx is cancelled or the converter fails. Cancellation
// returns nil.
func (s *Sampler) Run(ctx context.Context) error {
	for {
		_, _, err := s.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Step runs one window. It returns the computed reading and whether it was
// published. An empty window yields no reading.
func (s *Sampler) Step(ctx context.Context) (Reading, bool, error) {
	s.state = Collecting
	elapsed, err := s.collect(ctx)
	if err != nil {
		return Reading{}, false, err
	}

	s.state = Computing
	r, ok := s.compute(elapsed)
	if !ok {
		logger.Debug("empty window after %s, nothing to publish", elapsed)
		s.state = Collecting
		return Reading{}, false, nil
	}

	s.state = Publishing
	published := s.publish(r)
	s.state = Collecting
	return r, published, nil
}

func (s *Sampler) collect(ctx context.Context) (time.Duration, error) {
	s.window.Reset()
	s.skipped = 0
	start := s.clock.Now()
	deadline := start.Add(s.cfg.Window)
	for s.clock.Now().Before(deadline) {
		for _, ch := range s.cfg.Channels {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if err := s.adc.SetChannel(ch); err != nil {
				return 0, fmt.Errorf("set channel %s: %w", ch, err)
			}
			code, err := s.adc.ReadData()
			if errors.Is(err, ads1256.ErrNotReady) {
				s.skipped++
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("read %s: %w", ch, err)
			}
			if ch == s.cfg.Signal {
				s.window.Add(s.cfg.Params.Normalize(code))
			}
		}
	}
	return s.clock.Now().Sub(start), nil
}

func (s *Sampler) compute(elapsed time.Duration) (Reading, bool) {
	vrms, ok := s.window.RMS()
	if !ok {
		return Reading{}, false
	}
	p := s.cfg.Params
	isec := p.SecondaryCurrent(vrms)
	watts := p.Power(vrms)
	s.energy += Energy(watts, elapsed)
	r := Reading{
		Timestamp:        s.clock.Now(),
		Samples:          s.window.Len(),
		Elapsed:          elapsed,
		VRMS:             vrms,
		SecondaryCurrent: isec,
		PrimaryCurrent:   p.PrimaryCurrent(isec),
		Power:            watts,
		Energy:           s.energy,
	}
	logger.Debug("samples=%d skipped=%d burden=%.6fA primary=%.3fA power=%.2fW",
		r.Samples, s.skipped, r.SecondaryCurrent, r.PrimaryCurrent, r.Power)
	return r, true
}

func (s *Sampler) publish(r Reading) bool {
	if !s.cfg.Params.Plausible(r.Power) {
		logger.Debug("discarding implausible reading %.2fW", r.Power)
		return false
	}
	if s.pub == nil {
		return true
	}
	if err := s.pub.Publish(r); err != nil {
		logger.Error("publish: %v", err)
	}
	return true
}
