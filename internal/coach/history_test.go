package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBuffer_PushAndSnapshot(t *testing.T) {
	h := newHistoryBuffer(3)

	h.Push(1)
	h.Push(2)

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []float64{1, 2}, h.Snapshot())
}

func TestHistoryBuffer_EvictsOldestAtCapacity(t *testing.T) {
	h := newHistoryBuffer(3)

	for i := 1; i <= 5; i++ {
		h.Push(float64(i))
	}

	require.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{3, 4, 5}, h.Snapshot())
}

func TestHistoryBuffer_SnapshotIsACopy(t *testing.T) {
	h := newHistoryBuffer(3)
	h.Push(1)

	snap := h.Snapshot()
	snap[0] = 99

	assert.Equal(t, []float64{1}, h.Snapshot())
}

func TestHistoryBuffer_Clear(t *testing.T) {
	h := newHistoryBuffer(3)
	h.Push(1)
	h.Push(2)

	h.Clear()

	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Snapshot())
}

func TestHistoryBuffer_DefaultCapacity(t *testing.T) {
	h := newHistoryBuffer(0)

	for i := 0; i < HistoryCapacity+10; i++ {
		h.Push(float64(i))
	}

	assert.Equal(t, HistoryCapacity, h.Len())
}
