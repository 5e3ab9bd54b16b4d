package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmerta/cadence-coach/internal/events"
	"github.com/jmerta/cadence-coach/internal/safego"
	"tinygo.org/x/bluetooth"
)

// ManagerInterface is the Bluetooth surface the coach layer depends on.
// The production implementation wraps the platform adapter; tests and the
// mock strap mode substitute their own.
type ManagerInterface interface {
	Enable() error
	GetDeviceByAddressString(addressString string) Device
	StartScan(serviceUUIDFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(device Device) error
	Disconnect(device Device) error
	GetConnectedDevices() []Device
	GetScanDevices() []Device
	ListenToDeviceList(ch chan<- []Device) func()
	ListenToConnectedDevices(ch chan<- []Device) func()
	Shutdown()
}

var _ ManagerInterface = (*Manager)(nil)

// DefaultScanTimeout is how long a scan result stays listed without the
// device being seen again.
const DefaultScanTimeout = 10 * time.Second

type Manager struct {
	adapter          *bluetooth.Adapter
	devicesByAddress map[string]*deviceImpl
	mu               sync.RWMutex
	scanning         bool
	scanTimeout      time.Duration

	scanDeviceListEvent   *events.ChannelEvent[[]Device]
	connectedDevicesEvent *events.ChannelEvent[[]Device]

	scanCtx    context.Context
	scanCancel context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Logger
}

func NewManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *Manager {
	if logger == nil {
		panic("Manager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		adapter:               adapter,
		devicesByAddress:      make(map[string]*deviceImpl),
		scanTimeout:           scanTimeout,
		scanDeviceListEvent:   events.NewChannelEvent[[]Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]Device](true),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}
}

// Enable powers up the adapter and installs the connect/disconnect handler.
func (m *Manager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			m.logger.Printf("Device connected: %s", device.Address.String())
			d := m.getOrCreateDevice(device.Address)
			d.setConnectedDevice(&device)
			d.setState(Connected)
		} else {
			m.logger.Printf("Device disconnected: %s", device.Address.String())
			d := m.getOrCreateDevice(device.Address)
			d.setConnectedDevice(nil)
			d.setState(Disconnected)
		}
		m.emitConnectedDevicesChange()
	})
	return m.adapter.Enable()
}

func (m *Manager) GetDeviceByAddressString(addressString string) Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if device, ok := m.devicesByAddress[addressString]; ok {
		return device
	}
	return nil
}

func (m *Manager) getOrCreateDevice(address bluetooth.Address) *deviceImpl {
	m.mu.Lock()
	defer m.mu.Unlock()
	addressStr := address.String()
	if device, ok := m.devicesByAddress[addressStr]; ok {
		return device
	}
	device := newDeviceImpl(m.logger, address, m.scanTimeout)
	m.devicesByAddress[addressStr] = device
	return device
}

// StartScan begins scanning for peripherals advertising any of the given
// service UUIDs (nil = no filter). Results are published on the device list
// event once per second; devices not seen within scanTimeout are dropped.
func (m *Manager) StartScan(serviceUUIDFilter []string) {
	m.logger.Println("Starting BLE scan")

	filterSet := make(map[string]struct{}, len(serviceUUIDFilter))
	for _, uuid := range serviceUUIDFilter {
		filterSet[uuid] = struct{}{}
	}

	m.mu.Lock()
	if m.scanning && m.scanCancel != nil {
		m.logger.Printf("A scan is already running; restarting with new filter")
		m.scanCancel()
	}
	m.scanning = true
	m.scanCtx, m.scanCancel = context.WithCancel(m.ctx)
	scanCtx := m.scanCtx
	m.mu.Unlock()

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		m.cleanupStaleDevices(scanCtx)
	})

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				return
			default:
			}

			if len(filterSet) > 0 {
				found := false
				for _, uuid := range result.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found {
					return
				}
			}

			device := m.getOrCreateDevice(result.Address)
			firstSighting := device.scanResult == nil
			device.setScanResult(&result)
			device.SetScanLastSeen(time.Now())
			if firstSighting {
				device.setServiceUUIDs(result.ServiceUUIDs())
				name := result.LocalName()
				if name == "" {
					name = "Unknown"
				}
				m.logger.Printf("Found device: %s (%s) [RSSI: %d]", name, result.Address.String(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("Scan error: %v", err)
		}
	})

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

func (m *Manager) cleanupStaleDevices(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			var removed []string
			for addr, device := range m.devicesByAddress {
				if device.IsConnected() {
					continue
				}
				if now.Sub(device.GetScanLastSeen()) > m.scanTimeout {
					delete(m.devicesByAddress, addr)
					removed = append(removed, addr)
				}
			}
			m.mu.Unlock()

			for _, addr := range removed {
				m.logger.Printf("Device timeout: %s (not seen for %v)", addr, m.scanTimeout)
			}
		}
	}
}

func (m *Manager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *Manager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect initiates a connection. Completion is reported asynchronously via
// the adapter's connect handler; callers wait with Device.WaitForConnection.
func (m *Manager) Connect(device Device) error {
	addressStr := device.GetAddressString()

	m.mu.RLock()
	impl, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addressStr)
	}

	if _, err := m.adapter.Connect(impl.getAddress(), bluetooth.ConnectionParams{}); err != nil {
		return fmt.Errorf("connect to %s: %w", addressStr, err)
	}

	impl.setState(Connecting)
	m.logger.Printf("Connection initiated to %s", addressStr)
	return nil
}

func (m *Manager) Disconnect(device Device) error {
	addressStr := device.GetAddressString()

	m.mu.RLock()
	impl, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addressStr)
	}

	if impl.GetState() == Disconnected {
		return nil
	}
	inner := impl.getConnectedDevice()
	if inner == nil {
		return nil
	}
	return inner.Disconnect()
}

func (m *Manager) GetConnectedDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Device, 0)
	for _, device := range m.devicesByAddress {
		if device.IsConnected() {
			result = append(result, device)
		}
	}
	return result
}

func (m *Manager) GetScanDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Device, 0)
	for _, device := range m.devicesByAddress {
		if device.IsRecentlyScanned() {
			result = append(result, device)
		}
	}
	return result
}

// ListenToDeviceList registers a channel for scan result snapshots
// (emitted at most once per second while a scan runs).
func (m *Manager) ListenToDeviceList(ch chan<- []Device) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel for connected device
// snapshots, emitted on every connect and disconnect.
func (m *Manager) ListenToConnectedDevices(ch chan<- []Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *Manager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}

// Shutdown disconnects everything, stops scanning and waits for the
// manager's goroutines.
func (m *Manager) Shutdown() {
	m.logger.Println("BT manager: shutting down")
	for _, device := range m.GetConnectedDevices() {
		if err := m.Disconnect(device); err != nil {
			m.logger.Printf("Error disconnecting from %s: %v", device.GetAddressString(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("Error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BT manager: shutdown complete")
}
