package coach

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/jmerta/cadence-coach/internal/bt"
	"github.com/jmerta/cadence-coach/internal/events"
	"github.com/jmerta/cadence-coach/internal/safego"
)

// MockStrapDevice implements bt.Device for testing without a real strap.
// Its heart rate drifts toward a target settable through a small web UI, so
// the coaching loop can be exercised end to end.
type MockStrapDevice struct {
	logger    *log.Logger
	address   string
	localName string
	state     bt.DeviceState

	// Supported services for this device
	serviceUUIDs []string

	// Notification callbacks and simulated vitals (protected by mu)
	mu                sync.RWMutex
	heartRateCallback func([]byte)
	heartRate         float64
	targetHeartRate   float64
	energyExpended    uint16
	batteryLevel      uint8
	rng               *rand.Rand

	// Written values (for inspection via web UI)
	writtenValues   []WrittenValue
	writtenValuesMu sync.RWMutex

	// Web server management
	server     *http.Server
	serverPort int
	doneChan   chan struct{}
	wg         sync.WaitGroup
}

// WrittenValue records a value written to a characteristic
type WrittenValue struct {
	Timestamp          time.Time `json:"timestamp"`
	ServiceUUID        string    `json:"serviceUuid"`
	CharacteristicUUID string    `json:"characteristicUuid"`
	Data               []byte    `json:"data"`
	DataHex            string    `json:"dataHex"`
	Description        string    `json:"description"`
}

// MockStrapState represents the current state for the web API
type MockStrapState struct {
	HeartRate       float64 `json:"heartRate"`
	TargetHeartRate float64 `json:"targetHeartRate"`
	EnergyExpended  uint16  `json:"energyExpended"`
	BatteryLevel    uint8   `json:"batteryLevel"`
	Connected       bool    `json:"connected"`
	Address         string  `json:"address"`
	LocalName       string  `json:"localName"`
}

// MockStrapConfig holds configuration for creating a mock strap
type MockStrapConfig struct {
	Address      string
	LocalName    string
	ServerPort   int
	ServiceUUIDs []string
	InitialHR    float64
}

// NewMockStrapDevice creates a new mock heart-rate strap
func NewMockStrapDevice(logger *log.Logger, config MockStrapConfig) *MockStrapDevice {
	if logger == nil {
		panic("MockStrapDevice: logger cannot be nil")
	}

	initialHR := config.InitialHR
	if initialHR <= 0 {
		initialHR = 75
	}

	return &MockStrapDevice{
		logger:          logger,
		address:         config.Address,
		localName:       config.LocalName,
		state:           bt.Disconnected,
		serviceUUIDs:    config.ServiceUUIDs,
		heartRate:       initialHR,
		targetHeartRate: initialHR,
		batteryLevel:    87,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		writtenValues:   make([]WrittenValue, 0),
		serverPort:      config.ServerPort,
		doneChan:        make(chan struct{}),
	}
}

// Start starts the mock strap and its web server
func (m *MockStrapDevice) Start() error {
	m.logger.Printf("MockStrapDevice: Starting mock strap %s (%s)", m.localName, m.address)

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/api/state", m.handleGetState)
	mux.HandleFunc("/api/set", m.handleSetValues)
	mux.HandleFunc("/api/writes", m.handleGetWrites)

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.serverPort),
		Handler: mux,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Printf("MockStrapDevice: Web server starting on http://localhost:%d", m.serverPort)
		if err := m.server.ListenAndServe(); err != http.ErrServerClosed {
			m.logger.Printf("MockStrapDevice: Web server error: %v", err)
		}
	}()

	m.state = bt.Disconnected
	return nil
}

// SetConnected changes the connection state of the mock strap
func (m *MockStrapDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = bt.Connected
		m.logger.Printf("MockStrapDevice: State changed to Connected")
	} else {
		m.state = bt.Disconnected
		m.logger.Printf("MockStrapDevice: State changed to Disconnected")
	}
}

// Shutdown stops the mock strap and cleans up resources
func (m *MockStrapDevice) Shutdown() {
	m.logger.Printf("MockStrapDevice: Shutting down")
	close(m.doneChan)

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Printf("MockStrapDevice: Error shutting down web server: %v", err)
		}
	}

	m.wg.Wait()
	m.logger.Printf("MockStrapDevice: Shutdown complete")
}

// --- bt.Device Interface Implementation ---

func (m *MockStrapDevice) GetAddressString() string {
	return m.address
}

func (m *MockStrapDevice) GetScanRSSI() (int16, error) {
	return -50, nil // Good signal strength
}

func (m *MockStrapDevice) GetScanLastSeen() time.Time {
	return time.Now()
}

func (m *MockStrapDevice) SetScanLastSeen(t time.Time) {
	// No-op for mock
}

func (m *MockStrapDevice) GetLocalName() string {
	return m.localName
}

func (m *MockStrapDevice) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == bt.Connected
}

func (m *MockStrapDevice) GetState() bt.DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockStrapDevice) GetStateDescription() string {
	switch m.GetState() {
	case bt.Connected:
		return "Connected"
	case bt.Disconnected:
		return "Disconnected"
	case bt.Connecting:
		return "Connecting"
	default:
		return "Unknown"
	}
}

func (m *MockStrapDevice) IsRecentlyScanned() bool {
	return true
}

func (m *MockStrapDevice) WaitForConnection(timeout time.Duration) error {
	// Mock is always immediately connected
	return nil
}

func (m *MockStrapDevice) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasServiceUUIDLocked(serviceUuid) {
		return fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	if serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDHeartRateMeasurement {
		m.heartRateCallback = callbackFunc
		m.logger.Printf("MockStrapDevice [%s]: Heart rate notifications enabled", m.localName)
		return nil
	}
	return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
}

func (m *MockStrapDevice) hasServiceUUIDLocked(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (m *MockStrapDevice) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasServiceUUIDLocked(serviceUuid) {
		return fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	if serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDHeartRateMeasurement {
		m.heartRateCallback = nil
		m.logger.Printf("MockStrapDevice [%s]: Heart rate notifications disabled", m.localName)
		return nil
	}
	return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
}

func (m *MockStrapDevice) ReadCharacteristic(serviceUuid string, characteristicUuid string) ([]byte, error) {
	if !m.HasServiceUUID(serviceUuid) {
		return nil, fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	switch {
	case serviceUuid == ServiceUUIDBattery && characteristicUuid == CharUUIDBatteryLevel:
		m.mu.RLock()
		level := m.batteryLevel
		m.mu.RUnlock()
		return []byte{level}, nil
	case serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDBodySensorLocation:
		// 0x01 = Chest
		return []byte{0x01}, nil
	default:
		return nil, fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}
}

func (m *MockStrapDevice) WriteCharacteristic(serviceUuid string, characteristicUuid string, data []byte) error {
	m.logger.Printf("MockStrapDevice: WriteCharacteristic %s/%s data=%v", serviceUuid, characteristicUuid, data)

	description := ""
	if serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDHeartRateControlPoint {
		description = m.describeHRControl(data)
	}

	m.writtenValuesMu.Lock()
	m.writtenValues = append(m.writtenValues, WrittenValue{
		Timestamp:          time.Now(),
		ServiceUUID:        serviceUuid,
		CharacteristicUUID: characteristicUuid,
		Data:               data,
		DataHex:            hex.EncodeToString(data),
		Description:        description,
	})
	// Keep only last 100 writes
	if len(m.writtenValues) > 100 {
		m.writtenValues = m.writtenValues[len(m.writtenValues)-100:]
	}
	m.writtenValuesMu.Unlock()

	if serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDHeartRateControlPoint {
		if len(data) > 0 && data[0] == HRCPOpCodeResetEnergyExpended {
			m.mu.Lock()
			m.energyExpended = 0
			m.mu.Unlock()
			m.logger.Printf("MockStrapDevice: Energy expended counter reset")
		}
	}

	return nil
}

func (m *MockStrapDevice) describeHRControl(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	if data[0] == HRCPOpCodeResetEnergyExpended {
		return "Reset Energy Expended"
	}
	return fmt.Sprintf("Unknown opcode: 0x%02X", data[0])
}

func (m *MockStrapDevice) GetServiceUUIDs() []string {
	return m.serviceUUIDs
}

func (m *MockStrapDevice) HasServiceUUID(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

// --- Simulation ---

// stepSimulation advances the simulated vitals by one second: the heart
// rate drifts toward the target with a little jitter, energy accumulates
// and the battery sags very slowly.
func (m *MockStrapDevice) stepSimulation() {
	m.mu.Lock()
	defer m.mu.Unlock()

	diff := m.targetHeartRate - m.heartRate
	// Approach the target at up to 1 bpm/s, plus noise
	step := diff * 0.2
	if step > 1 {
		step = 1
	}
	if step < -1 {
		step = -1
	}
	m.heartRate += step + (m.rng.Float64()-0.5)*0.8
	if m.heartRate < 40 {
		m.heartRate = 40
	}
	if m.heartRate > 220 {
		m.heartRate = 220
	}

	// Roughly 1 kJ per 20 beats
	if m.rng.Intn(20) == 0 {
		m.energyExpended++
	}
	if m.batteryLevel > 1 && m.rng.Intn(600) == 0 {
		m.batteryLevel--
	}
}

// TriggerHeartRateNotification advances the simulation and sends one
// heart-rate notification.
func (m *MockStrapDevice) TriggerHeartRateNotification() {
	m.stepSimulation()

	m.mu.RLock()
	callback := m.heartRateCallback
	hr := uint8(m.heartRate)
	energy := m.energyExpended
	m.mu.RUnlock()

	if callback == nil {
		return
	}

	// Flags: contact supported + detected, energy expended present
	flags := byte(hrmFlagSensorContactSupported | hrmFlagSensorContactDetected | hrmFlagEnergyExpended)
	data := []byte{flags, hr, byte(energy & 0xFF), byte(energy >> 8)}
	callback(data)
}

// SetTargetHeartRate sets the level the simulated HR drifts toward
func (m *MockStrapDevice) SetTargetHeartRate(bpm float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bpm >= 40 && bpm <= 220 {
		m.targetHeartRate = bpm
	}
}

// --- Web Server Handlers ---

func (m *MockStrapDevice) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Mock HR Strap Control</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; }
        .section { margin: 20px 0; padding: 15px; border: 1px solid #ccc; border-radius: 5px; }
        h2 { margin-top: 0; }
        label { display: inline-block; width: 140px; }
        input[type="number"] { width: 100px; padding: 5px; }
        button { padding: 10px 20px; margin: 5px; cursor: pointer; }
        .status { padding: 10px; background: #e0e0e0; border-radius: 5px; margin: 10px 0; }
        #writes { max-height: 300px; overflow-y: auto; font-family: monospace; font-size: 12px; }
        .write-entry { padding: 5px; border-bottom: 1px solid #eee; }
        .write-time { color: #666; }
        .write-desc { color: #009; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Mock HR Strap Control</h1>

    <div class="section">
        <h2>Current State</h2>
        <div id="state" class="status">Loading...</div>
        <button onclick="refreshState()">Refresh</button>
    </div>

    <div class="section">
        <h2>Set Target Heart Rate</h2>
        <div>
            <label>Target HR:</label>
            <input type="number" id="targetHr" min="40" max="220" value="75"> bpm
        </div>
        <button onclick="setValues()">Set</button>
        <p>The simulated heart rate drifts toward the target over a few seconds.</p>
    </div>

    <div class="section">
        <h2>Written Values (from app)</h2>
        <div id="writes">Loading...</div>
        <button onclick="refreshWrites()">Refresh</button>
    </div>

    <script>
        function refreshState() {
            fetch('/api/state')
                .then(r => r.json())
                .then(data => {
                    document.getElementById('state').innerHTML =
                        'Address: ' + data.address + '<br>' +
                        'Name: ' + data.localName + '<br>' +
                        'Connected: ' + data.connected + '<br>' +
                        'Heart Rate: ' + data.heartRate.toFixed(0) + ' bpm<br>' +
                        'Target HR: ' + data.targetHeartRate.toFixed(0) + ' bpm<br>' +
                        'Energy: ' + data.energyExpended + ' kJ<br>' +
                        'Battery: ' + data.batteryLevel + '%';
                    document.getElementById('targetHr').value = data.targetHeartRate.toFixed(0);
                });
        }

        function setValues() {
            const params = new URLSearchParams({
                targetHr: document.getElementById('targetHr').value
            });
            fetch('/api/set?' + params, {method: 'POST'})
                .then(() => refreshState());
        }

        function refreshWrites() {
            fetch('/api/writes')
                .then(r => r.json())
                .then(data => {
                    const html = data.map(w =>
                        '<div class="write-entry">' +
                        '<span class="write-time">' + new Date(w.timestamp).toLocaleTimeString() + '</span> ' +
                        '<span class="write-desc">' + w.description + '</span><br>' +
                        'Data: ' + w.dataHex +
                        '</div>'
                    ).reverse().join('');
                    document.getElementById('writes').innerHTML = html || 'No writes yet';
                });
        }

        refreshState();
        refreshWrites();
        setInterval(refreshState, 2000);
        setInterval(refreshWrites, 2000);
    </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

func (m *MockStrapDevice) handleGetState(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	state := MockStrapState{
		HeartRate:       m.heartRate,
		TargetHeartRate: m.targetHeartRate,
		EnergyExpended:  m.energyExpended,
		BatteryLevel:    m.batteryLevel,
		Connected:       m.state == bt.Connected,
		Address:         m.address,
		LocalName:       m.localName,
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (m *MockStrapDevice) handleSetValues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hr := r.URL.Query().Get("targetHr"); hr != "" {
		var val float64
		fmt.Sscanf(hr, "%f", &val)
		m.SetTargetHeartRate(val)
	}

	w.WriteHeader(http.StatusOK)
}

func (m *MockStrapDevice) handleGetWrites(w http.ResponseWriter, r *http.Request) {
	m.writtenValuesMu.RLock()
	writes := make([]WrittenValue, len(m.writtenValues))
	copy(writes, m.writtenValues)
	m.writtenValuesMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(writes)
}

// --- MockBTManager ---

// MockBTManager is a mock implementation of bt.ManagerInterface backed by
// simulated straps.
type MockBTManager struct {
	logger                *log.Logger
	mockStraps            []*MockStrapDevice
	scanning              bool
	notificationsRunning  bool
	scanDeviceListEvent   *events.ChannelEvent[[]bt.Device]
	connectedDevicesEvent *events.ChannelEvent[[]bt.Device]
	ctx                   context.Context
	cancel                context.CancelFunc
	notifyCancel          context.CancelFunc // Cancel for notification goroutine
	wg                    sync.WaitGroup
	mu                    sync.RWMutex
}

var _ bt.ManagerInterface = (*MockBTManager)(nil)

// NewMockBTManager creates a new mock Bluetooth manager with two simulated
// straps: a full-featured one and a bare one without a battery service.
func NewMockBTManager(logger *log.Logger) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	mockStraps := []*MockStrapDevice{
		NewMockStrapDevice(logger, MockStrapConfig{
			Address:    "00:11:22:33:44:01",
			LocalName:  "Mock HR Strap",
			ServerPort: 9901,
			ServiceUUIDs: []string{
				ServiceUUIDHeartRate,
				ServiceUUIDBattery,
			},
			InitialHR: 75,
		}),
		NewMockStrapDevice(logger, MockStrapConfig{
			Address:    "00:11:22:33:44:02",
			LocalName:  "Mock Basic Strap",
			ServerPort: 9902,
			ServiceUUIDs: []string{
				ServiceUUIDHeartRate,
			},
			InitialHR: 68,
		}),
	}

	return &MockBTManager{
		logger:                logger,
		mockStraps:            mockStraps,
		scanDeviceListEvent:   events.NewChannelEvent[[]bt.Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.Device](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// Enable initializes the mock BT manager (straps start disconnected)
func (m *MockBTManager) Enable() error {
	m.logger.Println("MockBTManager: Enabling (mock straps will appear when scanning)")

	for _, strap := range m.mockStraps {
		if err := strap.Start(); err != nil {
			return err
		}
		m.logger.Printf("MockBTManager: %s web UI at http://localhost:%d", strap.localName, strap.serverPort)
	}

	m.connectedDevicesEvent.Notify([]bt.Device{})

	m.logger.Println("MockBTManager: Press 's' to scan and find mock straps, then connect via UI")
	return nil
}

// GetDeviceByAddressString returns a Device by its address string
func (m *MockBTManager) GetDeviceByAddressString(addressString string) bt.Device {
	for _, strap := range m.mockStraps {
		if strap.address == addressString {
			return strap
		}
	}
	return nil
}

// StartScan starts "scanning" for straps (returns all mock straps)
func (m *MockBTManager) StartScan(serviceUuidFilter []string) {
	m.logger.Println("MockBTManager: Starting scan")
	m.mu.Lock()
	m.scanning = true
	m.mu.Unlock()

	// Emit mock straps as scan results, repeating while scanning
	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		devices := make([]bt.Device, len(m.mockStraps))
		for i, strap := range m.mockStraps {
			devices[i] = strap
		}

		m.scanDeviceListEvent.Notify(devices)
		for _, strap := range m.mockStraps {
			m.logger.Printf("MockBTManager: Found strap: %s (%s)", strap.localName, strap.address)
		}

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.mu.RLock()
				scanning := m.scanning
				m.mu.RUnlock()
				if !scanning {
					return
				}
				for _, strap := range m.mockStraps {
					strap.SetScanLastSeen(time.Now())
				}
				m.scanDeviceListEvent.Notify(devices)
			}
		}
	})
}

// StopScan stops scanning
func (m *MockBTManager) StopScan() error {
	m.logger.Println("MockBTManager: Stopping scan")
	m.mu.Lock()
	m.scanning = false
	m.mu.Unlock()
	return nil
}

// IsScanning returns whether currently scanning
func (m *MockBTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect connects to a strap
func (m *MockBTManager) Connect(device bt.Device) error {
	m.logger.Printf("MockBTManager: Connecting to %s", device.GetAddressString())

	var mockStrap *MockStrapDevice
	for _, strap := range m.mockStraps {
		if strap.address == device.GetAddressString() {
			mockStrap = strap
			break
		}
	}
	if mockStrap == nil {
		return fmt.Errorf("unknown device: %s", device.GetAddressString())
	}

	mockStrap.SetConnected(true)

	// Start periodic notification sender (if not already running)
	m.startNotifications()

	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())

	m.logger.Printf("MockBTManager: Connected to %s", device.GetAddressString())
	return nil
}

// Disconnect disconnects from a strap
func (m *MockBTManager) Disconnect(device bt.Device) error {
	m.logger.Printf("MockBTManager: Disconnecting from %s", device.GetAddressString())

	for _, strap := range m.mockStraps {
		if strap.address == device.GetAddressString() {
			strap.SetConnected(false)
			break
		}
	}

	connectedDevices := m.GetConnectedDevices()
	m.connectedDevicesEvent.Notify(connectedDevices)

	if len(connectedDevices) == 0 {
		m.stopNotifications()
	}

	return nil
}

// startNotifications starts the periodic notification sender
func (m *MockBTManager) startNotifications() {
	m.mu.Lock()
	if m.notificationsRunning {
		m.mu.Unlock()
		return
	}
	m.notificationsRunning = true

	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel
	m.mu.Unlock()

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.notificationsRunning = false
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		m.logger.Println("MockBTManager: Started sending notifications")

		for {
			select {
			case <-notifyCtx.Done():
				m.logger.Println("MockBTManager: Stopped sending notifications")
				return
			case <-ticker.C:
				for _, strap := range m.mockStraps {
					if strap.IsConnected() {
						strap.TriggerHeartRateNotification()
					}
				}
			}
		}
	})
}

// stopNotifications stops the periodic notification sender
func (m *MockBTManager) stopNotifications() {
	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.mu.Unlock()
}

// GetConnectedDevices returns connected straps
func (m *MockBTManager) GetConnectedDevices() []bt.Device {
	var connected []bt.Device
	for _, strap := range m.mockStraps {
		if strap.IsConnected() {
			connected = append(connected, strap)
		}
	}
	return connected
}

// GetScanDevices returns scanned straps
func (m *MockBTManager) GetScanDevices() []bt.Device {
	m.mu.RLock()
	scanning := m.scanning
	m.mu.RUnlock()

	if scanning {
		devices := make([]bt.Device, len(m.mockStraps))
		for i, strap := range m.mockStraps {
			devices[i] = strap
		}
		return devices
	}
	return []bt.Device{}
}

// ListenToDeviceList registers a channel to receive device list changes
func (m *MockBTManager) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes
func (m *MockBTManager) ListenToConnectedDevices(ch chan<- []bt.Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

// Shutdown stops the mock manager
func (m *MockBTManager) Shutdown() {
	m.logger.Println("MockBTManager: Shutting down")
	m.stopNotifications()
	m.cancel()
	m.wg.Wait()
	for _, strap := range m.mockStraps {
		strap.Shutdown()
	}
	m.logger.Println("MockBTManager: Shutdown complete")
}

// GetMockStraps returns all mock straps for direct access
func (m *MockBTManager) GetMockStraps() []*MockStrapDevice {
	return m.mockStraps
}
