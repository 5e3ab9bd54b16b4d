package coach

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionExporter_WritesCSV(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	e := NewSessionExporter(testLogger())
	e.nowFn = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	path, err := e.Export(CoachState{History: []float64{150, 152, 151}})
	require.NoError(t, err)
	assert.Contains(t, path, "session_20260314_092653.csv")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "offset_seconds,heart_rate_bpm", lines[0])
	assert.Equal(t, "0,150", lines[1])
	assert.Equal(t, "1,152", lines[2])
	assert.Equal(t, "2,151", lines[3])
}

func TestSessionExporter_RejectsEmptyHistory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	e := NewSessionExporter(testLogger())

	_, err := e.Export(CoachState{})
	assert.Error(t, err)
}
