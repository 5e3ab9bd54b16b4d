package coach

import "time"

// Bluetooth Service and Characteristic UUIDs for heart-rate straps
const (
	// Heart Rate Service
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
	CharUUIDBodySensorLocation   = "00002a38-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateControlPoint = "00002a39-0000-1000-8000-00805f9b34fb"

	// Battery Service
	ServiceUUIDBattery   = "0000180f-0000-1000-8000-00805f9b34fb"
	CharUUIDBatteryLevel = "00002a19-0000-1000-8000-00805f9b34fb"
)

// Heart Rate Control Point op codes (Heart Rate Service 1.0 spec)
const (
	HRCPOpCodeResetEnergyExpended byte = 0x01
)

// CharacteristicMode defines how we interact with a characteristic
type CharacteristicMode int

const (
	ModeNotify CharacteristicMode = iota // Subscribe to notifications
	ModeRead                             // One-time or polled read
	ModeWrite                            // Write commands
)

// DataStreamID uniquely identifies a data stream
type DataStreamID string

const (
	StreamHeartRate          DataStreamID = "heart_rate"
	StreamBatteryLevel       DataStreamID = "battery_level"
	StreamBodySensorLocation DataStreamID = "body_sensor_location"
	StreamHRControl          DataStreamID = "hr_control"
)

// DataStream defines a service/characteristic combo for a specific data need
type DataStream struct {
	ID                 DataStreamID
	DisplayName        string
	ServiceUUID        string
	CharacteristicUUID string
	Mode               CharacteristicMode
}

var (
	DataStreamHeartRate = DataStream{
		ID:                 StreamHeartRate,
		DisplayName:        "Heart Rate",
		ServiceUUID:        ServiceUUIDHeartRate,
		CharacteristicUUID: CharUUIDHeartRateMeasurement,
		Mode:               ModeNotify,
	}
	DataStreamBatteryLevel = DataStream{
		ID:                 StreamBatteryLevel,
		DisplayName:        "Battery Level",
		ServiceUUID:        ServiceUUIDBattery,
		CharacteristicUUID: CharUUIDBatteryLevel,
		Mode:               ModeRead,
	}
	DataStreamBodySensorLocation = DataStream{
		ID:                 StreamBodySensorLocation,
		DisplayName:        "Sensor Location",
		ServiceUUID:        ServiceUUIDHeartRate,
		CharacteristicUUID: CharUUIDBodySensorLocation,
		Mode:               ModeRead,
	}
	DataStreamHRControl = DataStream{
		ID:                 StreamHRControl,
		DisplayName:        "HR Control Point",
		ServiceUUID:        ServiceUUIDHeartRate,
		CharacteristicUUID: CharUUIDHeartRateControlPoint,
		Mode:               ModeWrite,
	}
)

// AllDataStreams is the registry of all supported data streams
var AllDataStreams = []DataStream{
	DataStreamHeartRate,
	DataStreamBatteryLevel,
	DataStreamBodySensorLocation,
	DataStreamHRControl,
}

// GetStreamByID returns a stream by its ID
func GetStreamByID(id DataStreamID) (DataStream, bool) {
	for _, s := range AllDataStreams {
		if s.ID == id {
			return s, true
		}
	}
	return DataStream{}, false
}

// GetUniqueServiceUUIDs returns a deduplicated list of service UUIDs,
// used as the scan filter.
func GetUniqueServiceUUIDs() []string {
	seen := make(map[string]bool)
	var result []string
	for _, s := range AllDataStreams {
		if !seen[s.ServiceUUID] {
			seen[s.ServiceUUID] = true
			result = append(result, s.ServiceUUID)
		}
	}
	return result
}

// MetricID identifies an individual displayable metric value. A single BLE
// characteristic can carry several metrics (the Heart Rate Measurement also
// carries energy expended and RR intervals).
type MetricID string

const (
	MetricHeartRate      MetricID = "heart_rate"
	MetricEnergyExpended MetricID = "energy_expended"
	MetricRRInterval     MetricID = "rr_interval"
	MetricBatteryLevel   MetricID = "battery_level"
)

// MetricInfo contains display information for a metric
type MetricInfo struct {
	ID          MetricID
	DisplayName string
	Unit        string
	FormatStr   string
}

var AllMetrics = map[MetricID]MetricInfo{
	MetricHeartRate: {
		ID:          MetricHeartRate,
		DisplayName: "Heart Rate",
		Unit:        "bpm",
		FormatStr:   "%.0f",
	},
	MetricEnergyExpended: {
		ID:          MetricEnergyExpended,
		DisplayName: "Energy",
		Unit:        "kJ",
		FormatStr:   "%.0f",
	},
	MetricRRInterval: {
		ID:          MetricRRInterval,
		DisplayName: "RR Interval",
		Unit:        "ms",
		FormatStr:   "%.0f",
	},
	MetricBatteryLevel: {
		ID:          MetricBatteryLevel,
		DisplayName: "Strap Battery",
		Unit:        "%",
		FormatStr:   "%.0f",
	},
}

// MetricData holds the most recent value for each metric
type MetricData map[MetricID]float64

// UIMode represents the current UI mode/screen
type UIMode int

const (
	UIModeDeviceManagement UIMode = iota // Strap scanning and connection
	UIModeCoachDashboard                 // Live guidance, HR chart, controls
)

// UIModeInfo contains display information for a UI mode
type UIModeInfo struct {
	Mode        UIMode
	DisplayName string
	KeyBinding  rune
}

var AllUIModes = []UIModeInfo{
	{Mode: UIModeDeviceManagement, DisplayName: "Device Management", KeyBinding: '1'},
	{Mode: UIModeCoachDashboard, DisplayName: "Coach Dashboard", KeyBinding: '2'},
}

// GetUIModeByKey returns the mode for a given key binding
func GetUIModeByKey(key rune) (UIMode, bool) {
	for _, info := range AllUIModes {
		if info.KeyBinding == key {
			return info.Mode, true
		}
	}
	return 0, false
}

// GetUIModeInfo returns the info for a given mode
func GetUIModeInfo(mode UIMode) (UIModeInfo, bool) {
	for _, info := range AllUIModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return UIModeInfo{}, false
}

// Control loop policy. The tick drives all state transitions; experiments
// are evaluated a fixed delay after they start and spaced by a cooldown
// measured from the previous experiment's start.
const (
	DefaultTickPeriod      = 1 * time.Second
	DefaultEvaluationDelay = 15 * time.Second
	DefaultCooldown        = 15 * time.Second
)

// Sensitivity threshold: a heart-rate delta smaller than this many bpm is
// treated as noise. Users pick whole-bpm steps in [Min, Max].
const (
	DefaultSensitivity = 3.0
	MinSensitivity     = 1.0
	MaxSensitivity     = 5.0
	SensitivityStep    = 1.0
)

// HistoryCapacity bounds the HR history ring buffer (~1 minute at 1 Hz)
const HistoryCapacity = 60
