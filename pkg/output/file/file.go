// Package file persists power readings as CSV files: a rolling log of the
// most recent readings, a full historical log and a one line metrics file.
package file

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/Zatrac/ADS1256-driver/pkg/output"
	"github.com/Zatrac/ADS1256-driver/pkg/power"
)

const (
	DefaultLiveFile     = "live_data.csv"
	DefaultHistoryFile  = "historical_data.csv"
	DefaultMetricsFile  = "metrics.csv"
	DefaultLiveSamples  = 60
	timestampFormat     = "2006-01-02T15:04:05Z"
	fileMode            = 0o644
	directoryPermission = 0o755
)

// Config locates the files. Empty names fall back to the defaults.
type Config struct {
	Dir         string
	LiveFile    string
	HistoryFile string
	MetricsFile string
	LiveSamples int
}

type entry struct {
	ts    time.Time
	watts float64
}

// MetricLogger writes readings to the three CSV files.
type MetricLogger struct {
	live    string
	history string
	metrics string
	max     int
	pool    []entry // newest first
}

// NewMetricLogger creates the data directory if needed.
func NewMetricLogger(cfg Config) (output.Output, error) {
	return newMetricLogger(cfg)
}

func newMetricLogger(cfg Config) (*MetricLogger, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file output: no directory")
	}
	if err := os.MkdirAll(cfg.Dir, directoryPermission); err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	}
	m := &MetricLogger{
		live:    filepath.Join(cfg.Dir, orDefault(cfg.LiveFile, DefaultLiveFile)),
		history: filepath.Join(cfg.Dir, orDefault(cfg.HistoryFile, DefaultHistoryFile)),
		metrics: filepath.Join(cfg.Dir, orDefault(cfg.MetricsFile, DefaultMetricsFile)),
		max:     cfg.LiveSamples,
	}
	if m.max <= 0 {
		m.max = DefaultLiveSamples
	}
	return m, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Publish records the reading in all three files. A failing file does not
// stop the others from being written.
func (m *MetricLogger) Publish(r power.Reading) error {
	var err error
	err = multierr.Append(err, m.RecordInstant(r.Timestamp, r.Power))
	err = multierr.Append(err, m.RecordHistory(r.Timestamp, r.Power))
	err = multierr.Append(err, m.RecordSummary(r.Power, r.Energy))
	return err
}

// RecordInstant adds a reading to the live log and rewrites it, newest
// first, keeping at most LiveSamples lines.
func (m *MetricLogger) RecordInstant(ts time.Time, watts float64) error {
	m.pool = append([]entry{{ts: ts, watts: watts}}, m.pool...)
	if len(m.pool) > m.max {
		m.pool = m.pool[:m.max]
	}
	var buf bytes.Buffer
	for _, e := range m.pool {
		fmt.Fprintf(&buf, "%s,%.2f\n", e.ts.UTC().Format(timestampFormat), e.watts)
	}
	return os.WriteFile(m.live, buf.Bytes(), fileMode)
}

// RecordHistory appends a reading to the historical log.
func (m *MetricLogger) RecordHistory(ts time.Time, watts float64) error {
	f, err := os.OpenFile(m.history, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s,%.2f\n", ts.UTC().Format(timestampFormat), watts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// RecordSummary replaces the metrics file with the current power and the
// accumulated energy.
func (m *MetricLogger) RecordSummary(watts, kwh float64) error {
	return os.WriteFile(m.metrics, []byte(fmt.Sprintf("%.2f,%.2f", watts, kwh)), fileMode)
}

func (m *MetricLogger) Close() error { return nil }
