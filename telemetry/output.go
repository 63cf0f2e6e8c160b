package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/convection/config"
)

// csvLog appends gocsv records to a file, writing the header once.
type csvLog struct {
	name   string
	w      io.WriteCloser
	header bool
}

func openCSVLog(dir, name string) (*csvLog, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvLog{name: name, w: f}, nil
}

func (l *csvLog) append(records any) error {
	var err error
	if l.header {
		err = gocsv.MarshalWithoutHeaders(records, l.w)
	} else {
		err = gocsv.Marshal(records, l.w)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", l.name, err)
	}
	l.header = true
	return nil
}

// OutputManager writes a run's telemetry.csv, perf.csv and config snapshot.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	dir       string
	telemetry *csvLog
	perf      *csvLog
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	tl, err := openCSVLog(dir, "telemetry.csv")
	if err != nil {
		return nil, err
	}
	pl, err := openCSVLog(dir, "perf.csv")
	if err != nil {
		tl.w.Close()
		return nil, err
	}
	return &OutputManager{dir: dir, telemetry: tl, perf: pl}, nil
}

// WriteConfig saves the effective configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry appends a window stats row.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.append([]WindowStats{stats})
}

// WritePerf appends a performance row.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return om.perf.append([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files, returning the first error.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, l := range []*csvLog{om.telemetry, om.perf} {
		if err := l.w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
