package czone

// DeviceKind identifies a configuration entity class.
// The set is closed; switch on it instead of type assertions.
type DeviceKind uint8

const (
	KindUnknown DeviceKind = iota
	KindCircuit
	KindTank
	KindDcMeter
	KindAcMeter
	KindInverterCharger
	KindHvac
	KindAudioStereo
	KindBinaryLogicState
	KindGnss
	KindEngine
)

// String returns the configuration key prefix for the kind.
func (k DeviceKind) String() string {
	switch k {
	case KindCircuit:
		return "circuit"
	case KindTank:
		return "tank"
	case KindDcMeter:
		return "dcMeter"
	case KindAcMeter:
		return "acMeter"
	case KindInverterCharger:
		return "inverterCharger"
	case KindHvac:
		return "hvac"
	case KindAudioStereo:
		return "audioStereo"
	case KindBinaryLogicState:
		return "binaryLogicState"
	case KindGnss:
		return "gnss"
	case KindEngine:
		return "engine"
	default:
		return "unknown"
	}
}

// LivePrefix returns the LiveDevices id prefix for the kind, matching the
// snapshot section the kind's telemetry arrives in. Audio stereos carry no
// snapshot telemetry and return "".
func (k DeviceKind) LivePrefix() string {
	switch k {
	case KindCircuit:
		return "circuit"
	case KindTank:
		return "tank"
	case KindDcMeter:
		return "dc"
	case KindAcMeter:
		return "ac"
	case KindInverterCharger:
		return "inverterCharger"
	case KindHvac:
		return "hvac"
	case KindBinaryLogicState:
		return "bls"
	case KindGnss:
		return "gnss"
	case KindEngine:
		return "engine"
	default:
		return ""
	}
}

// Category is a circuit grouping relevant to Thing derivation.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryLighting
	CategoryBilgePumps
	CategoryPumps
	CategoryPower
)

var categoryNames = map[string]Category{
	"Lighting":    CategoryLighting,
	"Bilge Pumps": CategoryBilgePumps,
	"BilgePumps":  CategoryBilgePumps,
	"Pumps":       CategoryPumps,
	"Power":       CategoryPower,
}

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryLighting:
		return "Lighting"
	case CategoryBilgePumps:
		return "BilgePumps"
	case CategoryPumps:
		return "Pumps"
	case CategoryPower:
		return "Power"
	default:
		return "None"
	}
}

// SwitchType is how a circuit's hardware switch behaves.
type SwitchType uint8

const (
	SwitchNone SwitchType = iota
	SwitchLatch
	SwitchOnOff
	SwitchMomentary
	SwitchDimLinear
	SwitchDimExponential
)

var switchTypeNames = map[string]SwitchType{
	"None":           SwitchNone,
	"Latch":          SwitchLatch,
	"OnOff":          SwitchOnOff,
	"Momentary":      SwitchMomentary,
	"DimLinear":      SwitchDimLinear,
	"DimExponential": SwitchDimExponential,
}

// String returns the switch type name.
func (s SwitchType) String() string {
	for name, v := range switchTypeNames {
		if v == s {
			return name
		}
	}
	return "None"
}

// TankType is the fluid a tank holds.
type TankType uint8

const (
	TankUnknown TankType = iota
	TankFuel
	TankFreshWater
	TankWasteWater
	TankLiveWell
	TankOil
	TankBlackWater
)

var tankTypeNames = map[string]TankType{
	"Fuel":       TankFuel,
	"FreshWater": TankFreshWater,
	"WasteWater": TankWasteWater,
	"LiveWell":   TankLiveWell,
	"Oil":        TankOil,
	"BlackWater": TankBlackWater,
}

// IsFuel reports whether the tank maps to a fuel Thing.
func (t TankType) IsFuel() bool {
	return t == TankFuel || t == TankOil
}

// DcType is what a DC meter measures.
type DcType uint8

const (
	DcUnknown DcType = iota
	DcBattery
	DcAlternator
	DcConverter
	DcSolarCell
	DcWindGenerator
)

var dcTypeNames = map[string]DcType{
	"Battery":       DcBattery,
	"Alternator":    DcAlternator,
	"Converter":     DcConverter,
	"SolarCell":     DcSolarCell,
	"WindGenerator": DcWindGenerator,
}

// AcType is the source an AC meter measures.
type AcType uint8

const (
	AcUnknown AcType = iota
	AcShorePower
	AcInverter
	AcCharger
	AcGenerator
	AcOutlet
)

var acTypeNames = map[string]AcType{
	"ShorePower": AcShorePower,
	"Inverter":   AcInverter,
	"Charger":    AcCharger,
	"Generator":  AcGenerator,
	"Outlet":     AcOutlet,
}

// AlarmState is the lifecycle state of an alarm.
type AlarmState uint8

const (
	AlarmDisabled AlarmState = iota
	AlarmEnabled
	AlarmAcknowledged

	// AlarmUnrecognised marks a raw alarm whose state name could not be
	// parsed. It never appears in a published alarm list.
	AlarmUnrecognised
)

var alarmStateNames = map[string]AlarmState{
	"Disabled":     AlarmDisabled,
	"Enabled":      AlarmEnabled,
	"Acknowledged": AlarmAcknowledged,
}

// String returns the state name.
func (s AlarmState) String() string {
	switch s {
	case AlarmEnabled:
		return "Enabled"
	case AlarmAcknowledged:
		return "Acknowledged"
	case AlarmUnrecognised:
		return "Unrecognised"
	default:
		return "Disabled"
	}
}

// Severity is an alarm's severity class.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityCritical
	SeverityImportant
	SeverityStandard
	SeverityWarning
	// SeveritySIO is the switch-input-output class. These alarms duplicate
	// binary logic states and may be suppressed.
	SeveritySIO
)

var severityNames = map[string]Severity{
	"Critical":  SeverityCritical,
	"Important": SeverityImportant,
	"Standard":  SeverityStandard,
	"Warning":   SeverityWarning,
	"SIO":       SeveritySIO,
}

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityImportant:
		return "Important"
	case SeverityStandard:
		return "Standard"
	case SeverityWarning:
		return "Warning"
	case SeveritySIO:
		return "SIO"
	default:
		return "None"
	}
}

// AlarmType is the origin class of a backend alarm.
type AlarmType uint8

const (
	AlarmTypeExternal AlarmType = iota
	AlarmTypeDeviceMissing
	AlarmTypeInternal
)

var alarmTypeNames = map[string]AlarmType{
	"External":      AlarmTypeExternal,
	"DeviceMissing": AlarmTypeDeviceMissing,
	"Internal":      AlarmTypeInternal,
}

// ItemType names the kind of item on either side of a UI relationship.
type ItemType uint8

const (
	ItemUnknown ItemType = iota
	ItemCircuit
	ItemDcMeter
	ItemAcMeter
	ItemTank
)

var itemTypeNames = map[string]ItemType{
	"Circuit": ItemCircuit,
	"DcMeter": ItemDcMeter,
	"AcMeter": ItemAcMeter,
	"Tank":    ItemTank,
}

// Kind returns the device kind the item refers to.
func (t ItemType) Kind() DeviceKind {
	switch t {
	case ItemCircuit:
		return KindCircuit
	case ItemDcMeter:
		return KindDcMeter
	case ItemAcMeter:
		return KindAcMeter
	case ItemTank:
		return KindTank
	default:
		return KindUnknown
	}
}

// EventType is the kind of change notification the backend emits.
type EventType string

const (
	EventConfigChanged       EventType = "ConfigChanged"
	EventEngineConfigChanged EventType = "EngineConfigChanged"
	EventAlarmAdded          EventType = "AlarmAdded"
	EventAlarmRemoved        EventType = "AlarmRemoved"
	EventAlarmChanged        EventType = "AlarmChanged"
	EventAlarmActivated      EventType = "AlarmActivated"
	EventAlarmDeactivated    EventType = "AlarmDeactivated"
)

// IsAlarm reports whether the event should trigger an alarm reload.
func (e EventType) IsAlarm() bool {
	switch e {
	case EventAlarmAdded, EventAlarmRemoved, EventAlarmChanged, EventAlarmActivated, EventAlarmDeactivated:
		return true
	default:
		return false
	}
}
