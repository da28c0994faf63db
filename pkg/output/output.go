package output

import (
	"go.uber.org/multierr"

	"github.com/Zatrac/ADS1256-driver/pkg/power"
)

type Output interface {
	Publish(power.Reading) error
	Close() error
}

// Multi fans a reading out to every output. One failing output does not
// stop the others.
type Multi []Output

func (m Multi) Publish(r power.Reading) error {
	var err error
	for _, o := range m {
		err = multierr.Append(err, o.Publish(r))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, o := range m {
		err = multierr.Append(err, o.Close())
	}
	return err
}

// helper constructors are in subpackages
