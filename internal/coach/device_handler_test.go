package coach

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeartRateMeasurement_Uint8(t *testing.T) {
	metrics, err := parseHeartRateMeasurement([]byte{0x00, 75})

	require.NoError(t, err)
	assert.Equal(t, 75.0, metrics[MetricHeartRate])
}

func TestParseHeartRateMeasurement_Uint16(t *testing.T) {
	// 300 bpm = 0x012C little-endian
	metrics, err := parseHeartRateMeasurement([]byte{0x01, 0x2C, 0x01})

	require.NoError(t, err)
	assert.Equal(t, 300.0, metrics[MetricHeartRate])
}

func TestParseHeartRateMeasurement_NoSkinContactDropped(t *testing.T) {
	// Contact feature supported (bit 2) but contact not detected (bit 1)
	metrics, err := parseHeartRateMeasurement([]byte{0x04, 80})

	require.NoError(t, err)
	assert.Nil(t, metrics)
}

func TestParseHeartRateMeasurement_WithSkinContact(t *testing.T) {
	metrics, err := parseHeartRateMeasurement([]byte{0x06, 80})

	require.NoError(t, err)
	assert.Equal(t, 80.0, metrics[MetricHeartRate])
}

func TestParseHeartRateMeasurement_EnergyExpended(t *testing.T) {
	// Flags: energy expended present; energy = 16 kJ
	metrics, err := parseHeartRateMeasurement([]byte{0x08, 90, 0x10, 0x00})

	require.NoError(t, err)
	assert.Equal(t, 90.0, metrics[MetricHeartRate])
	assert.Equal(t, 16.0, metrics[MetricEnergyExpended])
}

func TestParseHeartRateMeasurement_RRIntervals(t *testing.T) {
	// One RR interval of 1024 units = exactly 1000 ms
	metrics, err := parseHeartRateMeasurement([]byte{0x10, 70, 0x00, 0x04})

	require.NoError(t, err)
	assert.Equal(t, 70.0, metrics[MetricHeartRate])
	assert.Equal(t, 1000.0, metrics[MetricRRInterval])
}

func TestParseHeartRateMeasurement_KeepsLastRRInterval(t *testing.T) {
	// Two RR intervals, 512 then 1024 units; the latest wins
	metrics, err := parseHeartRateMeasurement([]byte{0x10, 70, 0x00, 0x02, 0x00, 0x04})

	require.NoError(t, err)
	assert.Equal(t, 1000.0, metrics[MetricRRInterval])
}

func TestParseHeartRateMeasurement_TooShort(t *testing.T) {
	_, err := parseHeartRateMeasurement([]byte{0x00})
	assert.Error(t, err)

	_, err = parseHeartRateMeasurement([]byte{0x01, 80})
	assert.Error(t, err)

	_, err = parseHeartRateMeasurement([]byte{0x08, 80, 0x10})
	assert.Error(t, err)
}

func TestParseBatteryLevel(t *testing.T) {
	metrics, err := parseBatteryLevel([]byte{55})
	require.NoError(t, err)
	assert.Equal(t, 55.0, metrics[MetricBatteryLevel])

	_, err = parseBatteryLevel([]byte{101})
	assert.Error(t, err)

	_, err = parseBatteryLevel(nil)
	assert.Error(t, err)
}

type recordingSink struct {
	mu      sync.Mutex
	samples []float64
}

func (s *recordingSink) SetHeartRate(bpm float64) {
	s.mu.Lock()
	s.samples = append(s.samples, bpm)
	s.mu.Unlock()
}

func (s *recordingSink) recorded() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.samples...)
}

func TestDeviceHandler_NotificationFeedsSinkAndModel(t *testing.T) {
	model, manager := newTestModel(t)
	sink := &recordingSink{}
	handler := NewDeviceHandler(model, manager, sink, testLogger())
	t.Cleanup(handler.Shutdown)

	notify := handler.createNotificationHandler(StreamHeartRate)
	notify([]byte{0x00, 142})

	assert.Equal(t, []float64{142}, sink.recorded())
	assert.Equal(t, 142.0, model.GetLatestData()[MetricHeartRate])
}

func TestDeviceHandler_MalformedNotificationIgnored(t *testing.T) {
	model, manager := newTestModel(t)
	sink := &recordingSink{}
	handler := NewDeviceHandler(model, manager, sink, testLogger())
	t.Cleanup(handler.Shutdown)

	notify := handler.createNotificationHandler(StreamHeartRate)
	notify([]byte{0x01})

	assert.Empty(t, sink.recorded())
	assert.Empty(t, model.GetLatestData())
}
