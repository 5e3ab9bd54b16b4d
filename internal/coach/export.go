package coach

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const exportDirName = "exports"

// SessionExporter writes session history snapshots as CSV files under the
// app config directory.
type SessionExporter struct {
	dir    string
	logger *log.Logger
	nowFn  func() time.Time
}

func NewSessionExporter(logger *log.Logger) *SessionExporter {
	if logger == nil {
		panic("SessionExporter: logger cannot be nil")
	}

	e := &SessionExporter{logger: logger, nowFn: time.Now}
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Printf("SessionExporter: cannot resolve home directory, export disabled: %v", err)
		return e
	}
	e.dir = filepath.Join(home, appConfigDirName, exportDirName)
	return e
}

// Export writes the history in the snapshot to a timestamped CSV file and
// returns its path. Samples are written oldest first with their offset in
// seconds from the first sample.
func (e *SessionExporter) Export(state CoachState) (string, error) {
	if e.dir == "" {
		return "", fmt.Errorf("export directory unavailable")
	}
	if len(state.History) == 0 {
		return "", fmt.Errorf("no samples to export")
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	name := fmt.Sprintf("session_%s.csv", e.nowFn().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"offset_seconds", "heart_rate_bpm"}); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for i, bpm := range state.History {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(bpm, 'f', 0, 64),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write sample %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export: %w", err)
	}

	return path, nil
}
