package bt

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmerta/cadence-coach/internal/safemap"
	"tinygo.org/x/bluetooth"
)

type DeviceState int

const (
	Disconnected DeviceState = iota
	Connecting
	Connected
)

// Device is the view of a BLE peripheral the rest of the app works with.
// Implementations: deviceImpl (real hardware) and the coach package's mock
// heart-rate strap.
type Device interface {
	GetAddressString() string
	GetScanRSSI() (int16, error)
	GetScanLastSeen() time.Time
	SetScanLastSeen(time.Time)
	GetLocalName() string
	IsConnected() bool
	GetState() DeviceState
	GetStateDescription() string
	IsRecentlyScanned() bool
	WaitForConnection(timeout time.Duration) error
	EnableNotifications(serviceUUID string, characteristicUUID string, callback func(buf []byte)) error
	DisableNotifications(serviceUUID string, characteristicUUID string) error
	ReadCharacteristic(serviceUUID string, characteristicUUID string) ([]byte, error)
	WriteCharacteristic(serviceUUID string, characteristicUUID string, data []byte) error
	GetServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
}

type deviceImpl struct {
	address         bluetooth.Address
	scanLastSeen    time.Time
	localName       string
	scanResult      *bluetooth.ScanResult
	connectedDevice *bluetooth.Device // nil while not connected
	mu              sync.RWMutex
	bleMu           sync.Mutex // serializes GATT operations on this peripheral
	scanTimeout     time.Duration
	logger          *log.Logger
	state           DeviceState

	// Discovery caches. Re-discovering a single service mid-session can
	// interrupt notifications on a previously discovered one, so we discover
	// everything once and cache.
	serviceByUUID          *safemap.SafeMap[string, *bluetooth.DeviceService]
	characteristicByUUID   *safemap.SafeMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsDiscovered *safemap.SafeMap[string, bool]
	allServicesDiscovered  bool

	serviceUUIDStrs []string
}

func newDeviceImpl(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *deviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	if scanTimeout <= 0 {
		panic("scanTimeout must be > 0")
	}
	return &deviceImpl{
		logger:                 logger,
		address:                address,
		localName:              "Unknown",
		scanTimeout:            scanTimeout,
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUUID:          safemap.New[string, *bluetooth.DeviceService](),
		characteristicByUUID:   safemap.New[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsDiscovered: safemap.New[string, bool](),
	}
}

func (d *deviceImpl) getAddress() bluetooth.Address {
	return d.address
}

func (d *deviceImpl) GetAddressString() string {
	return d.address.String()
}

func (d *deviceImpl) GetServiceUUIDs() []string {
	return d.serviceUUIDStrs
}

func (d *deviceImpl) HasServiceUUID(uuid string) bool {
	for _, u := range d.serviceUUIDStrs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (d *deviceImpl) setServiceUUIDs(uuids []bluetooth.UUID) {
	strs := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		strs = append(strs, uuid.String())
	}
	d.serviceUUIDStrs = strs
}

func (d *deviceImpl) GetScanRSSI() (int16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return 0, fmt.Errorf("no rssi available for %s", d.address.String())
	}
	return d.scanResult.RSSI, nil
}

func (d *deviceImpl) GetScanLastSeen() time.Time {
	return d.scanLastSeen
}

func (d *deviceImpl) SetScanLastSeen(t time.Time) {
	d.scanLastSeen = t
}

func (d *deviceImpl) GetLocalName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult != nil {
		if name := d.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return d.localName
}

func (d *deviceImpl) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectedDevice != nil
}

func (d *deviceImpl) GetState() DeviceState {
	return d.state
}

func (d *deviceImpl) GetStateDescription() string {
	switch d.state {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

func (d *deviceImpl) IsRecentlyScanned() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return false
	}
	return time.Since(d.scanLastSeen) <= d.scanTimeout
}

// WaitForConnection polls until the connect handler has recorded the
// connection or the timeout elapses.
func (d *deviceImpl) WaitForConnection(timeout time.Duration) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if d.IsConnected() {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout after %v waiting for connection to %s", timeout, d.address.String())
		}
	}
}

func (d *deviceImpl) EnableNotifications(serviceUUIDStr, characteristicUUIDStr string, callback func(buf []byte)) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	characteristic, err := d.lookupCharacteristic(serviceUUIDStr, characteristicUUIDStr)
	if err != nil {
		return err
	}

	if err := characteristic.EnableNotifications(callback); err != nil {
		return fmt.Errorf("failed to enable notifications on %s: %w", characteristicUUIDStr, err)
	}
	d.logger.Printf("Device %s: notifications enabled for %s", d.address.String(), characteristicUUIDStr)
	return nil
}

func (d *deviceImpl) DisableNotifications(serviceUUIDStr, characteristicUUIDStr string) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	characteristic, err := d.lookupCharacteristic(serviceUUIDStr, characteristicUUIDStr)
	if err != nil {
		return err
	}

	// A nil callback disables notifications in the tinygo bluetooth API
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications on %s: %w", characteristicUUIDStr, err)
	}
	d.logger.Printf("Device %s: notifications disabled for %s", d.address.String(), characteristicUUIDStr)
	return nil
}

func (d *deviceImpl) ReadCharacteristic(serviceUUIDStr, characteristicUUIDStr string) ([]byte, error) {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	characteristic, err := d.lookupCharacteristic(serviceUUIDStr, characteristicUUIDStr)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	n, err := characteristic.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", characteristicUUIDStr, err)
	}
	return buf[:n], nil
}

func (d *deviceImpl) WriteCharacteristic(serviceUUIDStr, characteristicUUIDStr string, data []byte) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	characteristic, err := d.lookupCharacteristic(serviceUUIDStr, characteristicUUIDStr)
	if err != nil {
		return err
	}

	if _, err := characteristic.Write(data); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", characteristicUUIDStr, err)
	}
	return nil
}

func (d *deviceImpl) setScanResult(scanResult *bluetooth.ScanResult) {
	d.mu.Lock()
	d.scanResult = scanResult
	d.mu.Unlock()
}

func (d *deviceImpl) setConnectedDevice(device *bluetooth.Device) {
	d.mu.Lock()
	d.connectedDevice = device
	d.mu.Unlock()
}

func (d *deviceImpl) getConnectedDevice() *bluetooth.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectedDevice
}

func (d *deviceImpl) setState(state DeviceState) {
	d.state = state
}

// lookupCharacteristic resolves a service/characteristic pair through the
// discovery caches. Caller must hold bleMu.
func (d *deviceImpl) lookupCharacteristic(serviceUUIDStr, characteristicUUIDStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUUID, err := bluetooth.ParseUUID(serviceUUIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUUIDStr, err)
	}
	_, err = bluetooth.ParseUUID(characteristicUUIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUUIDStr, err)
	}

	comboKey := serviceUUIDStr + "_" + characteristicUUIDStr
	if characteristic, ok := d.characteristicByUUID.Load(comboKey); ok {
		return characteristic, nil
	}

	if discovered, _ := d.serviceCharsDiscovered.Load(serviceUUIDStr); !discovered {
		service, err := d.lookupService(serviceUUID)
		if err != nil {
			return nil, err
		}

		d.logger.Printf("Device %s: discovering characteristics for service %s", d.address.String(), serviceUUIDStr)
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %s: %w", serviceUUIDStr, err)
		}
		for i := range chars {
			char := &chars[i]
			d.characteristicByUUID.Store(serviceUUIDStr+"_"+char.UUID().String(), char)
		}
		d.serviceCharsDiscovered.Store(serviceUUIDStr, true)
	}

	characteristic, ok := d.characteristicByUUID.Load(comboKey)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", characteristicUUIDStr, serviceUUIDStr)
	}
	return characteristic, nil
}

func (d *deviceImpl) lookupService(serviceUUID bluetooth.UUID) (*bluetooth.DeviceService, error) {
	connectedDevice := d.getConnectedDevice()
	if connectedDevice == nil {
		return nil, fmt.Errorf("device %s is not connected", d.address.String())
	}

	serviceUUIDStr := serviceUUID.String()
	if service, ok := d.serviceByUUID.Load(serviceUUIDStr); ok {
		return service, nil
	}

	if !d.allServicesDiscovered {
		d.logger.Printf("Device %s: discovering all services", d.address.String())
		services, err := connectedDevice.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		for i := range services {
			svc := &services[i]
			d.serviceByUUID.Store(svc.UUID().String(), svc)
		}
		d.allServicesDiscovered = true
	}

	service, ok := d.serviceByUUID.Load(serviceUUIDStr)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device %s", serviceUUIDStr, d.address.String())
	}
	return service, nil
}
