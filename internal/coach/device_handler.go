package coach

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmerta/cadence-coach/internal/bt"
)

const connectTimeout = 10 * time.Second

// HeartRateSink receives parsed heart-rate samples. The optimiser is the
// only production implementation.
type HeartRateSink interface {
	SetHeartRate(bpm float64)
}

// DeviceHandler owns the BLE side of a strap: connect, subscribe to the
// Heart Rate Measurement characteristic, poll battery, and fan the parsed
// values out to the sink and the model.
type DeviceHandler struct {
	model     *CoachModel
	btManager bt.ManagerInterface
	sink      HeartRateSink
	logger    *log.Logger

	subscriptionsMu   sync.RWMutex
	subscribedStreams map[string]map[DataStreamID]bool

	pollMu        sync.Mutex
	pollStopChans map[string]chan struct{}
	pollWg        sync.WaitGroup
}

func NewDeviceHandler(model *CoachModel, btManager bt.ManagerInterface, sink HeartRateSink, logger *log.Logger) *DeviceHandler {
	if model == nil {
		panic("DeviceHandler: model cannot be nil")
	}
	if btManager == nil {
		panic("DeviceHandler: btManager cannot be nil")
	}
	if sink == nil {
		panic("DeviceHandler: sink cannot be nil")
	}
	if logger == nil {
		panic("DeviceHandler: logger cannot be nil")
	}
	return &DeviceHandler{
		model:             model,
		btManager:         btManager,
		sink:              sink,
		logger:            logger,
		subscribedStreams: make(map[string]map[DataStreamID]bool),
		pollStopChans:     make(map[string]chan struct{}),
	}
}

// ConnectStrap connects the given strap and subscribes to heart-rate
// notifications. Battery level is read once and then polled slowly because
// most straps expose it read-only.
func (h *DeviceHandler) ConnectStrap(address string) error {
	btDevice := h.btManager.GetDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}

	deviceName := fmt.Sprintf("%s (%s)", btDevice.GetLocalName(), btDevice.GetAddressString())

	if btDevice.IsConnected() {
		h.logger.Printf("Device %s already connected, subscribing", deviceName)
	} else {
		h.logger.Printf("Connecting to strap: %s", deviceName)

		if err := h.btManager.Connect(btDevice); err != nil {
			h.logger.Printf("DeviceHandler: Error initiating connection: %v", err)
			return fmt.Errorf("failed to initiate connection: %w", err)
		}

		if err := btDevice.WaitForConnection(connectTimeout); err != nil {
			h.logger.Printf("DeviceHandler: Connection timeout: %v", err)
			return fmt.Errorf("connection timeout: %w", err)
		}

		h.logger.Printf("DeviceHandler: Connected to %s", deviceName)
	}

	if !btDevice.HasServiceUUID(ServiceUUIDHeartRate) {
		return fmt.Errorf("device %s does not expose the heart rate service", deviceName)
	}

	err := btDevice.EnableNotifications(
		DataStreamHeartRate.ServiceUUID,
		DataStreamHeartRate.CharacteristicUUID,
		h.createNotificationHandler(StreamHeartRate),
	)
	if err != nil {
		h.logger.Printf("DeviceHandler: Failed to enable notifications for %s: %v", DataStreamHeartRate.DisplayName, err)
		return fmt.Errorf("failed to enable notifications for %s: %w", DataStreamHeartRate.DisplayName, err)
	}
	h.logger.Printf("Subscribed to %s", DataStreamHeartRate.DisplayName)

	h.subscriptionsMu.Lock()
	if h.subscribedStreams[address] == nil {
		h.subscribedStreams[address] = make(map[DataStreamID]bool)
	}
	h.subscribedStreams[address][StreamHeartRate] = true
	h.subscriptionsMu.Unlock()

	// Battery is optional and read-only on every strap seen so far
	if btDevice.HasServiceUUID(ServiceUUIDBattery) {
		if err := h.EnablePoll(StreamBatteryLevel, address, 60*time.Second); err != nil {
			h.logger.Printf("DeviceHandler: Battery poll not started: %v", err)
		}
	} else {
		h.logger.Printf("DeviceHandler: Device %s has no battery service", deviceName)
	}

	h.model.SetConnectedStrap(&UIDeviceModel{
		Name:    btDevice.GetLocalName(),
		Address: btDevice.GetAddressString(),
	})

	return nil
}

// DisconnectStrap tears down the strap connection and its subscriptions
func (h *DeviceHandler) DisconnectStrap(address string) error {
	btDevice := h.btManager.GetDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}

	h.logger.Printf("Disconnecting: %s", btDevice.GetLocalName())

	h.StopPoll(StreamBatteryLevel, address)

	h.subscriptionsMu.Lock()
	streams := h.subscribedStreams[address]
	delete(h.subscribedStreams, address)
	h.subscriptionsMu.Unlock()

	if btDevice.IsConnected() {
		for streamID := range streams {
			stream, ok := GetStreamByID(streamID)
			if !ok || stream.Mode != ModeNotify {
				continue
			}
			if err := btDevice.DisableNotifications(stream.ServiceUUID, stream.CharacteristicUUID); err != nil {
				h.logger.Printf("DeviceHandler: Failed to disable notifications for %s: %v", streamID, err)
			}
		}
	}

	if err := h.btManager.Disconnect(btDevice); err != nil {
		h.logger.Printf("DeviceHandler: Error disconnecting: %v", err)
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	h.model.SetConnectedStrap(nil)
	return nil
}

// ResetEnergyExpended writes the reset op code to the HR Control Point.
// Straps without the characteristic return an error from the write.
func (h *DeviceHandler) ResetEnergyExpended(address string) error {
	btDevice := h.btManager.GetDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}
	if !btDevice.IsConnected() {
		return fmt.Errorf("device not connected: %s", address)
	}

	data := []byte{HRCPOpCodeResetEnergyExpended}
	h.logger.Printf("Resetting energy expended counter on %s", address)
	err := btDevice.WriteCharacteristic(
		DataStreamHRControl.ServiceUUID,
		DataStreamHRControl.CharacteristicUUID,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to reset energy expended: %w", err)
	}
	return nil
}

// StartScan starts scanning for straps
func (h *DeviceHandler) StartScan() {
	serviceUuidFilter := GetUniqueServiceUUIDs()
	h.logger.Printf("Starting BLE scan...")
	h.btManager.StartScan(serviceUuidFilter)
}

// StopScan stops scanning
func (h *DeviceHandler) StopScan() error {
	if err := h.btManager.StopScan(); err != nil {
		h.logger.Printf("DeviceHandler: Error stopping scan: %v", err)
		return err
	}
	h.logger.Printf("Scanning stopped")
	return nil
}

// IsScanning returns true if currently scanning
func (h *DeviceHandler) IsScanning() bool {
	return h.btManager.IsScanning()
}

// createNotificationHandler returns a callback for BT notifications on the
// given stream. Parsed heart rate goes to the sink, everything else only to
// the model.
func (h *DeviceHandler) createNotificationHandler(streamID DataStreamID) func(buf []byte) {
	return func(buf []byte) {
		metrics, err := h.parseStreamData(streamID, buf)
		if err != nil {
			h.logger.Printf("[%s] Parse error: %v (raw: %v)", streamID, err, buf)
			return
		}
		if len(metrics) == 0 {
			return
		}

		if bpm, ok := metrics[MetricHeartRate]; ok {
			h.sink.SetHeartRate(bpm)
		}
		h.model.SetMetrics(metrics)
	}
}

func (h *DeviceHandler) parseStreamData(streamID DataStreamID, buf []byte) (MetricData, error) {
	switch streamID {
	case StreamHeartRate:
		return parseHeartRateMeasurement(buf)
	case StreamBatteryLevel:
		return parseBatteryLevel(buf)
	case StreamBodySensorLocation:
		// Informational only, nothing worth surfacing as a metric
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown stream type: %s", streamID)
	}
}

// Heart Rate Measurement flag bits (Heart Rate Service 1.0 spec)
const (
	hrmFlagValueUint16           = 1 << 0 // Bit 0: 0 = UINT8, 1 = UINT16
	hrmFlagSensorContactDetected = 1 << 1 // Bit 1: contact status (when supported)
	hrmFlagSensorContactSupported = 1 << 2 // Bit 2: contact feature supported
	hrmFlagEnergyExpended        = 1 << 3 // Bit 3: Energy Expended present
	hrmFlagRRIntervals           = 1 << 4 // Bit 4: one or more RR intervals present
)

// parseHeartRateMeasurement parses the Heart Rate Measurement characteristic.
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
// A reading with the contact feature supported but no skin contact is
// dropped rather than fed into the session as a zero.
func parseHeartRateMeasurement(buf []byte) (MetricData, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("heart rate data too short: %d bytes", len(buf))
	}

	flags := buf[0]
	offset := 1

	var heartRate uint16
	if flags&hrmFlagValueUint16 != 0 {
		if len(buf) < 3 {
			return nil, fmt.Errorf("heart rate UINT16 data too short: %d bytes", len(buf))
		}
		heartRate = uint16(buf[1]) | (uint16(buf[2]) << 8)
		offset = 3
	} else {
		heartRate = uint16(buf[1])
		offset = 2
	}

	contactSupported := flags&hrmFlagSensorContactSupported != 0
	contactDetected := flags&hrmFlagSensorContactDetected != 0
	if contactSupported && !contactDetected {
		return nil, nil
	}

	metrics := MetricData{
		MetricHeartRate: float64(heartRate),
	}

	if flags&hrmFlagEnergyExpended != 0 {
		if offset+2 > len(buf) {
			return nil, fmt.Errorf("heart rate data too short for energy expended at offset %d", offset)
		}
		energy := uint16(buf[offset]) | (uint16(buf[offset+1]) << 8)
		metrics[MetricEnergyExpended] = float64(energy)
		offset += 2
	}

	if flags&hrmFlagRRIntervals != 0 {
		if offset+2 > len(buf) {
			return nil, fmt.Errorf("heart rate data too short for RR interval at offset %d", offset)
		}
		// Multiple RR intervals can arrive in one notification; keep the
		// most recent one (last in the buffer)
		var rr uint16
		for offset+2 <= len(buf) {
			rr = uint16(buf[offset]) | (uint16(buf[offset+1]) << 8)
			offset += 2
		}
		// RR resolution is 1/1024 second
		metrics[MetricRRInterval] = float64(rr) * 1000.0 / 1024.0
	}

	return metrics, nil
}

// parseBatteryLevel parses the Battery Level characteristic (UINT8 percent)
func parseBatteryLevel(buf []byte) (MetricData, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("battery level data too short: %d bytes", len(buf))
	}
	level := buf[0]
	if level > 100 {
		return nil, fmt.Errorf("battery level out of range: %d", level)
	}
	return MetricData{
		MetricBatteryLevel: float64(level),
	}, nil
}

// --- Polling ---

func pollKey(streamID DataStreamID, address string) string {
	return string(streamID) + ":" + address
}

// EnablePoll periodically reads a characteristic and feeds the data through
// the same handler notifications use, so read-only characteristics look
// like any other stream downstream.
func (h *DeviceHandler) EnablePoll(streamID DataStreamID, address string, pollPeriod time.Duration) error {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	key := pollKey(streamID, address)
	if _, exists := h.pollStopChans[key]; exists {
		return fmt.Errorf("poll already active for stream %s on device %s", streamID, address)
	}

	btDevice := h.btManager.GetDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}
	if !btDevice.IsConnected() {
		return fmt.Errorf("device not connected: %s", address)
	}

	stream, ok := GetStreamByID(streamID)
	if !ok {
		return fmt.Errorf("unknown stream ID: %s", streamID)
	}

	handler := h.createNotificationHandler(streamID)

	stopChan := make(chan struct{})
	h.pollStopChans[key] = stopChan

	h.pollWg.Add(1)
	go func() {
		defer h.pollWg.Done()
		defer func() {
			h.pollMu.Lock()
			delete(h.pollStopChans, key)
			h.pollMu.Unlock()
		}()

		h.logger.Printf("DeviceHandler: Starting poll for %s on %s (period: %v)", streamID, address, pollPeriod)

		// Read once up front so the UI doesn't wait a full period
		if data, err := btDevice.ReadCharacteristic(stream.ServiceUUID, stream.CharacteristicUUID); err == nil {
			handler(data)
		} else {
			h.logger.Printf("DeviceHandler: Initial poll read error for %s: %v", streamID, err)
		}

		ticker := time.NewTicker(pollPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-stopChan:
				h.logger.Printf("DeviceHandler: Stopping poll for %s on %s", streamID, address)
				return
			case <-ticker.C:
				if !btDevice.IsConnected() {
					h.logger.Printf("DeviceHandler: Device disconnected, stopping poll for %s on %s", streamID, address)
					return
				}

				data, err := btDevice.ReadCharacteristic(stream.ServiceUUID, stream.CharacteristicUUID)
				if err != nil {
					h.logger.Printf("DeviceHandler: Poll read error for %s: %v", streamID, err)
					continue
				}
				handler(data)
			}
		}
	}()

	return nil
}

// StopPoll stops a specific poll goroutine
func (h *DeviceHandler) StopPoll(streamID DataStreamID, address string) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	if stopChan, exists := h.pollStopChans[pollKey(streamID, address)]; exists {
		close(stopChan)
	}
}

// Shutdown stops all poll goroutines and waits for them to finish
func (h *DeviceHandler) Shutdown() {
	h.pollMu.Lock()
	for key, stopChan := range h.pollStopChans {
		h.logger.Printf("DeviceHandler: Signaling stop for poll %s", key)
		close(stopChan)
	}
	h.pollMu.Unlock()

	h.pollWg.Wait()
	h.logger.Printf("DeviceHandler: All poll goroutines stopped")
}
