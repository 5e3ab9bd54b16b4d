package coach

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/jmerta/cadence-coach/internal/bt"
	"github.com/jmerta/cadence-coach/internal/events"
	"github.com/jmerta/cadence-coach/internal/safego"
)

// UIDeviceModel is the view-facing description of a scanned or connected
// heart-rate strap.
type UIDeviceModel struct {
	Name    string
	Address string
	RSSI    int16
}

// UIState holds the current state of the UI that views need to render
type UIState struct {
	Mode UIMode
}

// CoachState is the optimiser's published snapshot: everything the
// presentation layer reads about the session.
type CoachState struct {
	Recording      bool
	CurrentHR      float64
	History        []float64 // oldest first, at most HistoryCapacity samples
	Advice         Advice
	Sensitivity    float64
	PlateauActive  bool
	PlateauHR      float64 // valid only when PlateauActive
	TestInProgress bool
	TestDirection  Direction // valid only when TestInProgress
}

// AutoConnectRequest asks the controller to connect the remembered strap
// when it reappears in a scan.
type AutoConnectRequest struct {
	Device *UIDeviceModel
}

// CoachModel is the observable hub between the core, the BLE plumbing and
// the views. All mutation is funneled through setters that notify events
// outside the model lock.
type CoachModel struct {
	logEvent             *events.ChannelEvent[string]
	scanDevicesEvent     *events.ChannelEvent[[]*UIDeviceModel]
	connectedStrapEvent  *events.ChannelEvent[*UIDeviceModel]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	uiStateEvent         *events.ChannelEvent[UIState]
	coachStateEvent      *events.ChannelEvent[CoachState]
	latestDataEvent      *events.ChannelEvent[MetricData]
	autoConnectEvent     *events.ChannelEvent[AutoConnectRequest]

	mu             sync.RWMutex
	uiState        UIState
	coachState     CoachState
	latestData     MetricData
	scanDevices    []*UIDeviceModel
	connectedStrap *UIDeviceModel

	logMu    sync.RWMutex
	logLines []string

	persistence *preferences
	autoConnectRequested bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *log.Logger
}

const maxLogLines = 1000

func NewCoachModel(manager bt.ManagerInterface, logger *log.Logger, uiLogChan <-chan string) *CoachModel {
	if logger == nil {
		panic("CoachModel: logger cannot be nil")
	}
	if uiLogChan == nil {
		panic("CoachModel: uiLogChan cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &CoachModel{
		logEvent:              events.NewChannelEvent[string](false),
		scanDevicesEvent:      events.NewChannelEvent[[]*UIDeviceModel](true),
		connectedStrapEvent:   events.NewChannelEvent[*UIDeviceModel](true),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		uiStateEvent:          events.NewChannelEvent[UIState](true),
		coachStateEvent:       events.NewChannelEvent[CoachState](true),
		latestDataEvent:       events.NewChannelEvent[MetricData](true),
		autoConnectEvent:      events.NewChannelEvent[AutoConnectRequest](false),
		uiState:               UIState{Mode: UIModeDeviceManagement},
		coachState:            CoachState{Advice: AdviceIdle, Sensitivity: DefaultSensitivity},
		latestData:            make(MetricData),
		logLines:              make([]string, 0, maxLogLines),
		persistence:           newPreferences(logger),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}

	m.wg.Add(1)
	safego.Go(logger, func() { m.listenToScanDevices(ctx, manager) })

	m.wg.Add(1)
	safego.Go(logger, func() { m.listenToPhysicalConnections(ctx, manager) })

	m.wg.Add(1)
	safego.Go(logger, func() { m.readFromLogChannel(ctx, uiLogChan) })

	return m
}

// Shutdown stops the model's goroutines and waits for them
func (m *CoachModel) Shutdown() {
	m.logger.Println("CoachModel: shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("CoachModel: shutdown complete")
}

// --- Log pane ---

func (m *CoachModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *CoachModel) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}
			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n log lines
func (m *CoachModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

// --- UI state ---

func (m *CoachModel) ListenToUIState(ch chan<- UIState) func() {
	return m.uiStateEvent.Listen(ch)
}

func (m *CoachModel) GetUIState() UIState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uiState
}

func (m *CoachModel) SetMode(mode UIMode) {
	m.mu.Lock()
	if m.uiState.Mode == mode {
		m.mu.Unlock()
		return
	}
	m.uiState.Mode = mode
	state := m.uiState
	m.mu.Unlock()

	m.uiStateEvent.Notify(state)
}

func (m *CoachModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

func (m *CoachModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

// --- Coach state ---

func (m *CoachModel) ListenToCoachState(ch chan<- CoachState) func() {
	return m.coachStateEvent.Listen(ch)
}

func (m *CoachModel) GetCoachState() CoachState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coachState
}

// SetCoachState replaces the published session snapshot and notifies
// listeners. Called by the optimiser after every transition.
func (m *CoachModel) SetCoachState(state CoachState) {
	m.mu.Lock()
	m.coachState = state
	m.mu.Unlock()

	m.coachStateEvent.Notify(state)
}

// --- Secondary metrics (battery, energy, RR) ---

func (m *CoachModel) ListenToLatestData(ch chan<- MetricData) func() {
	return m.latestDataEvent.Listen(ch)
}

func (m *CoachModel) GetLatestData() MetricData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(MetricData, len(m.latestData))
	for k, v := range m.latestData {
		result[k] = v
	}
	return result
}

// SetMetrics merges metric values and notifies listeners once
func (m *CoachModel) SetMetrics(metrics MetricData) {
	if len(metrics) == 0 {
		return
	}

	m.mu.Lock()
	for k, v := range metrics {
		m.latestData[k] = v
	}
	dataCopy := make(MetricData, len(m.latestData))
	for k, v := range m.latestData {
		dataCopy[k] = v
	}
	m.mu.Unlock()

	m.latestDataEvent.Notify(dataCopy)
}

// --- Scanned and connected straps ---

func (m *CoachModel) ListenToScanDevices(ch chan<- []*UIDeviceModel) func() {
	return m.scanDevicesEvent.Listen(ch)
}

func (m *CoachModel) GetScanDevices() []*UIDeviceModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*UIDeviceModel, len(m.scanDevices))
	copy(result, m.scanDevices)
	return result
}

func (m *CoachModel) ListenToConnectedStrap(ch chan<- *UIDeviceModel) func() {
	return m.connectedStrapEvent.Listen(ch)
}

func (m *CoachModel) GetConnectedStrap() *UIDeviceModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectedStrap
}

// SetConnectedStrap records the strap the user assigned and remembers it
// for auto-reconnect in later runs. Pass nil to clear.
func (m *CoachModel) SetConnectedStrap(device *UIDeviceModel) {
	m.mu.Lock()
	m.connectedStrap = device
	m.mu.Unlock()

	if device != nil {
		m.persistence.setPreferredStrap(device.Address)
	}
	m.connectedStrapEvent.Notify(device)
}

func (m *CoachModel) ListenToAutoConnect(ch chan<- AutoConnectRequest) func() {
	return m.autoConnectEvent.Listen(ch)
}

// listenToScanDevices converts manager scan snapshots into sorted view
// models and raises an auto-connect request when the remembered strap shows
// up.
func (m *CoachModel) listenToScanDevices(ctx context.Context, manager bt.ManagerInterface) {
	defer m.wg.Done()

	deviceChan := make(chan []bt.Device, 1)
	unregister := manager.ListenToDeviceList(deviceChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case devices, ok := <-deviceChan:
			if !ok {
				return
			}

			models := convertToUIDeviceModels(devices)

			m.mu.Lock()
			m.scanDevices = models
			connected := m.connectedStrap
			m.mu.Unlock()

			m.scanDevicesEvent.Notify(models)

			// Fire auto-connect at most once per run, and only while no
			// strap is assigned yet
			if connected == nil && !m.autoConnectRequested {
				preferred := m.persistence.getPreferredStrap()
				if preferred == "" {
					continue
				}
				for _, dev := range models {
					if dev.Address == preferred {
						m.autoConnectRequested = true
						m.logger.Printf("CoachModel: preferred strap %s in range, requesting auto-connect", preferred)
						m.autoConnectEvent.Notify(AutoConnectRequest{Device: dev})
						break
					}
				}
			}
		}
	}
}

// listenToPhysicalConnections clears the strap assignment when the device
// drops its link.
func (m *CoachModel) listenToPhysicalConnections(ctx context.Context, manager bt.ManagerInterface) {
	defer m.wg.Done()

	deviceChan := make(chan []bt.Device, 1)
	unregister := manager.ListenToConnectedDevices(deviceChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case devices, ok := <-deviceChan:
			if !ok {
				return
			}

			connectedAddresses := make(map[string]bool, len(devices))
			for _, dev := range devices {
				connectedAddresses[dev.GetAddressString()] = true
			}

			m.mu.Lock()
			var dropped *UIDeviceModel
			if m.connectedStrap != nil && !connectedAddresses[m.connectedStrap.Address] {
				dropped = m.connectedStrap
				m.connectedStrap = nil
			}
			m.mu.Unlock()

			if dropped != nil {
				m.logger.Printf("CoachModel: strap %s disconnected, clearing assignment", dropped.Address)
				m.connectedStrapEvent.Notify(nil)
			}
		}
	}
}

func convertToUIDeviceModels(devices []bt.Device) []*UIDeviceModel {
	sorted := make([]bt.Device, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GetAddressString() < sorted[j].GetAddressString()
	})

	models := make([]*UIDeviceModel, 0, len(sorted))
	for _, device := range sorted {
		rssi, err := device.GetScanRSSI()
		if err != nil {
			rssi = 0
		}
		models = append(models, &UIDeviceModel{
			Name:    device.GetLocalName(),
			Address: device.GetAddressString(),
			RSSI:    rssi,
		})
	}
	return models
}
