package coach

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/jmerta/cadence-coach/internal/bt"
	"github.com/jmerta/cadence-coach/internal/events"
)

// fakeManager is a minimal in-memory bt.ManagerInterface for model and
// optimiser tests.
type fakeManager struct {
	mu               sync.Mutex
	scanning         bool
	scanDevices      []bt.Device
	connectedDevices []bt.Device

	deviceListEvent      *events.ChannelEvent[[]bt.Device]
	connectedDevicesEvent *events.ChannelEvent[[]bt.Device]
}

var _ bt.ManagerInterface = (*fakeManager)(nil)

func newFakeManager() *fakeManager {
	return &fakeManager{
		deviceListEvent:       events.NewChannelEvent[[]bt.Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.Device](true),
	}
}

func (f *fakeManager) Enable() error { return nil }

func (f *fakeManager) GetDeviceByAddressString(addressString string) bt.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dev := range f.scanDevices {
		if dev.GetAddressString() == addressString {
			return dev
		}
	}
	return nil
}

func (f *fakeManager) StartScan(serviceUUIDFilter []string) {
	f.mu.Lock()
	f.scanning = true
	f.mu.Unlock()
}

func (f *fakeManager) StopScan() error {
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
	return nil
}

func (f *fakeManager) IsScanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *fakeManager) Connect(device bt.Device) error {
	f.mu.Lock()
	f.connectedDevices = append(f.connectedDevices, device)
	devices := append([]bt.Device(nil), f.connectedDevices...)
	f.mu.Unlock()
	f.connectedDevicesEvent.Notify(devices)
	return nil
}

func (f *fakeManager) Disconnect(device bt.Device) error {
	f.mu.Lock()
	remaining := f.connectedDevices[:0]
	for _, dev := range f.connectedDevices {
		if dev.GetAddressString() != device.GetAddressString() {
			remaining = append(remaining, dev)
		}
	}
	f.connectedDevices = remaining
	devices := append([]bt.Device(nil), f.connectedDevices...)
	f.mu.Unlock()
	f.connectedDevicesEvent.Notify(devices)
	return nil
}

func (f *fakeManager) GetConnectedDevices() []bt.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bt.Device(nil), f.connectedDevices...)
}

func (f *fakeManager) GetScanDevices() []bt.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bt.Device(nil), f.scanDevices...)
}

func (f *fakeManager) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return f.deviceListEvent.Listen(ch)
}

func (f *fakeManager) ListenToConnectedDevices(ch chan<- []bt.Device) func() {
	return f.connectedDevicesEvent.Listen(ch)
}

func (f *fakeManager) Shutdown() {}

// publishScanDevices simulates a scan snapshot arriving from the adapter
func (f *fakeManager) publishScanDevices(devices []bt.Device) {
	f.mu.Lock()
	f.scanDevices = append([]bt.Device(nil), devices...)
	f.mu.Unlock()
	f.deviceListEvent.Notify(devices)
}

// fakeCueEmitter counts cue deliveries
type fakeCueEmitter struct {
	mu       sync.Mutex
	increase int
	ease     int
}

func (f *fakeCueEmitter) CueIncrease() {
	f.mu.Lock()
	f.increase++
	f.mu.Unlock()
}

func (f *fakeCueEmitter) CueEase() {
	f.mu.Lock()
	f.ease++
	f.mu.Unlock()
}

func (f *fakeCueEmitter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increase, f.ease
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestModel(t *testing.T) (*CoachModel, *fakeManager) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	manager := newFakeManager()
	logChan := make(chan string, 16)
	model := NewCoachModel(manager, testLogger(), logChan)
	t.Cleanup(model.Shutdown)
	return model, manager
}

// newTestOptimiser builds an optimiser whose background ticker never fires
// so tests can drive Tick with fake timestamps.
func newTestOptimiser(t *testing.T, cfg OptimiserConfig) (*Optimiser, *fakeCueEmitter) {
	t.Helper()

	model, _ := newTestModel(t)
	cues := &fakeCueEmitter{}
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = time.Hour
	}
	o := NewOptimiser(model, cues, testLogger(), cfg)
	t.Cleanup(o.Shutdown)
	return o, cues
}
