package coach

// historyBuffer is a fixed-capacity FIFO of heart-rate samples,
// most-recent-last. It feeds the dashboard chart and has no role in the
// control loop itself.
type historyBuffer struct {
	samples  []float64
	capacity int
}

func newHistoryBuffer(capacity int) *historyBuffer {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &historyBuffer{
		samples:  make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest when full.
func (h *historyBuffer) Push(value float64) {
	if len(h.samples) == h.capacity {
		copy(h.samples, h.samples[1:])
		h.samples[len(h.samples)-1] = value
		return
	}
	h.samples = append(h.samples, value)
}

func (h *historyBuffer) Len() int {
	return len(h.samples)
}

// Snapshot returns a copy in arrival order (oldest first).
func (h *historyBuffer) Snapshot() []float64 {
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *historyBuffer) Clear() {
	h.samples = h.samples[:0]
}
