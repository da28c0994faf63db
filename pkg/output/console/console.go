package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Zatrac/ADS1256-driver/pkg/output"
	"github.com/Zatrac/ADS1256-driver/pkg/power"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(r power.Reading) error {
	_, err := fmt.Fprintf(c.w, "%s samples=%d burden=%.6fA primary=%.3fA power=%.2fW energy=%.4fkWh\n",
		r.Timestamp.UTC().Format(time.RFC3339), r.Samples, r.SecondaryCurrent, r.PrimaryCurrent, r.Power, r.Energy)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
