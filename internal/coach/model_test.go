package coach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerta/cadence-coach/internal/bt"
)

func newScanStrap(t *testing.T, name, address string) bt.Device {
	t.Helper()
	return NewMockStrapDevice(testLogger(), MockStrapConfig{
		Address:      address,
		LocalName:    name,
		ServiceUUIDs: []string{ServiceUUIDHeartRate},
	})
}

func TestCoachModel_ScanDevicesSortedByAddress(t *testing.T) {
	model, manager := newTestModel(t)

	manager.publishScanDevices([]bt.Device{
		newScanStrap(t, "Strap B", "00:00:00:00:00:02"),
		newScanStrap(t, "Strap A", "00:00:00:00:00:01"),
	})

	assert.Eventually(t, func() bool {
		devices := model.GetScanDevices()
		return len(devices) == 2 &&
			devices[0].Address == "00:00:00:00:00:01" &&
			devices[1].Address == "00:00:00:00:00:02"
	}, time.Second, 10*time.Millisecond)

	devices := model.GetScanDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, "Strap A", devices[0].Name)
	assert.Equal(t, int16(-50), devices[0].RSSI)
}

func TestCoachModel_PhysicalDisconnectClearsStrap(t *testing.T) {
	model, manager := newTestModel(t)

	model.SetConnectedStrap(&UIDeviceModel{Name: "Strap A", Address: "00:00:00:00:00:01"})
	require.NotNil(t, model.GetConnectedStrap())

	// The adapter reports no connected devices anymore
	manager.connectedDevicesEvent.Notify([]bt.Device{})

	assert.Eventually(t, func() bool {
		return model.GetConnectedStrap() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestCoachModel_LogTail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	logChan := make(chan string, 16)
	model := NewCoachModel(newFakeManager(), testLogger(), logChan)
	t.Cleanup(model.Shutdown)

	logChan <- "first"
	logChan <- "second"
	logChan <- "third"

	assert.Eventually(t, func() bool {
		return len(model.GetLogTail(10)) == 3
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"second", "third"}, model.GetLogTail(2))
	assert.Empty(t, model.GetLogTail(0))
}

func TestCoachModel_AutoConnectFiresOnceForRememberedStrap(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// First run: the user assigns a strap, which is remembered
	firstManager := newFakeManager()
	firstModel := NewCoachModel(firstManager, testLogger(), make(chan string, 1))
	firstModel.SetConnectedStrap(&UIDeviceModel{Name: "Strap A", Address: "00:00:00:00:00:01"})
	firstModel.Shutdown()

	// Second run: the remembered strap shows up in a scan
	manager := newFakeManager()
	model := NewCoachModel(manager, testLogger(), make(chan string, 1))
	t.Cleanup(model.Shutdown)

	requests := make(chan AutoConnectRequest, 4)
	unregister := model.ListenToAutoConnect(requests)
	defer unregister()

	strap := newScanStrap(t, "Strap A", "00:00:00:00:00:01")
	manager.publishScanDevices([]bt.Device{strap})

	select {
	case req := <-requests:
		require.NotNil(t, req.Device)
		assert.Equal(t, "00:00:00:00:00:01", req.Device.Address)
	case <-time.After(time.Second):
		t.Fatal("expected an auto-connect request")
	}

	// Repeated scan snapshots must not re-request
	manager.publishScanDevices([]bt.Device{strap})
	select {
	case <-requests:
		t.Fatal("auto-connect requested twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoachModel_SetMetricsMerges(t *testing.T) {
	model, _ := newTestModel(t)

	model.SetMetrics(MetricData{MetricHeartRate: 150})
	model.SetMetrics(MetricData{MetricBatteryLevel: 87})

	data := model.GetLatestData()
	assert.Equal(t, 150.0, data[MetricHeartRate])
	assert.Equal(t, 87.0, data[MetricBatteryLevel])
}
